package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/config"
	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/logger"
	"github.com/open2e/open2e/internal/sysinfo"
)

// cliEnv is the configuration, console logger and databases a maintenance
// command runs with.
type cliEnv struct {
	cfg *config.Config
	log *logger.Logger
	dbs *database.Manager
}

func openCLIEnv(withDatabases bool) (*cliEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := &cliEnv{
		cfg: cfg,
		log: logger.New(logger.Config{Level: cfg.Logging.Level, Format: "console"}),
	}
	if withDatabases {
		env.dbs, err = database.NewManager(cfg.Data.Dir, env.log.Logger)
		if err != nil {
			env.log.Close()
			return nil, fmt.Errorf("failed to open databases: %w", err)
		}
	}
	return env, nil
}

func (e *cliEnv) Close() {
	if e.dbs != nil {
		e.dbs.Close()
	}
	e.log.Close()
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openCLIEnv(true)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.dbs.MigrateAll(cmd.Context()); err != nil {
				return err
			}
			return printVersions(cmd, env)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version of each database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openCLIEnv(true)
			if err != nil {
				return err
			}
			defer env.Close()
			return printVersions(cmd, env)
		},
	}

	migrateCmd.AddCommand(statusCmd)
	return migrateCmd
}

func printVersions(cmd *cobra.Command, env *cliEnv) error {
	versions, err := env.dbs.Versions(cmd.Context())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s  version %d\n", name, env.cfg.Data.DatabasePath(name), versions[name])
	}
	return nil
}

func newBackupCmd() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import questions, evaluations, rubrics and chats",
	}

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCLIEnv(true)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.dbs.MigrateAll(cmd.Context()); err != nil {
				return err
			}
			data, err := backup.NewService(env.dbs, config.Version, env.log.Logger).Export(cmd.Context())
			if err != nil {
				return err
			}

			path := args[0]
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := backup.Encode(f, data); err != nil {
				f.Close()
				return fmt.Errorf("failed to write backup: %w", err)
			}
			return f.Close()
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the current data with a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			data, err := backup.Decode(f)
			if err != nil {
				return err
			}

			env, err := openCLIEnv(true)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.dbs.MigrateAll(cmd.Context()); err != nil {
				return err
			}
			return backup.NewService(env.dbs, config.Version, env.log.Logger).Import(cmd.Context(), data)
		},
	}

	backupCmd.AddCommand(exportCmd, importCmd)
	return backupCmd
}

func newSysinfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sysinfo",
		Short: "Print the memory figure used to pick a local model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openCLIEnv(false)
			if err != nil {
				return err
			}
			defer env.Close()

			gb, err := sysinfo.NewService(sysinfo.HostReader(), env.log.Logger).TotalMemoryGB()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total memory: %d GB\n", gb)
			return nil
		},
	}
}
