package tasks

import (
	"context"

	"github.com/open2e/open2e/internal/scheduler"
)

const DatabaseMaintenanceTaskID = "db-maintenance"

// Checkpointer compacts the application databases.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// RegisterDatabaseMaintenanceTask registers the WAL checkpoint and optimize
// job. It also runs once at startup.
func RegisterDatabaseMaintenanceTask(sched *scheduler.Scheduler, dbs Checkpointer, cron string) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          DatabaseMaintenanceTaskID,
		Name:        "Database Maintenance",
		Description: "Checkpoints the write-ahead log and refreshes query statistics",
		Cron:        cron,
		RunOnStart:  true,
		Func:        dbs.Checkpoint,
	})
}
