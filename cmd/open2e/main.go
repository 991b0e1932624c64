package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/open2e/open2e/internal/api"
	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/config"
	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/keycheck"
	"github.com/open2e/open2e/internal/logger"
	"github.com/open2e/open2e/internal/platform"
	"github.com/open2e/open2e/internal/scheduler"
	"github.com/open2e/open2e/internal/scheduler/tasks"
	"github.com/open2e/open2e/internal/settings"
	"github.com/open2e/open2e/internal/sqlbridge"
	"github.com/open2e/open2e/internal/sysinfo"
	"github.com/open2e/open2e/internal/websocket"
	"github.com/open2e/open2e/internal/window"
	"github.com/open2e/open2e/web"
)

var (
	configPath string
	noTray     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "open2e",
		Short:         "Open2E desktop host",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runApp,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.Flags().BoolVar(&noTray, "no-tray", false, "run without the system tray (console mode)")

	rootCmd.AddCommand(newMigrateCmd(), newBackupCmd(), newSysinfoCmd())

	if err := rootCmd.Execute(); err != nil {
		bootstrapLog(fmt.Sprintf("FATAL: %v", err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	// macOS creates NSApplication and the status item on the main thread.
	runtime.LockOSThread()

	bootstrapLog("=== Open2E starting ===")
	bootstrapLog(fmt.Sprintf("OS: %s, Arch: %s, Version: %s", runtime.GOOS, runtime.GOARCH, config.Version))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if noTray {
		cfg.Window.NoTray = true
	}
	bootstrapLog(fmt.Sprintf("Config loaded: port=%d, dataDir=%s", cfg.Server.Port, cfg.Data.Dir))

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("dataDir", cfg.Data.Dir).
		Bool("firstRun", platform.IsFirstRun(cfg.Data.Dir)).
		Msg("starting Open2E")

	dbManager, err := database.NewManager(cfg.Data.Dir, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer dbManager.Close()

	// Migration failures abort startup.
	if err := dbManager.MigrateAll(cmd.Context()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	bootstrapLog("Database migrations complete")

	configuredPort := cfg.Server.Port
	actualPort, err := config.FindAvailablePort(cfg.Server.Port, 10)
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}
	if actualPort != configuredPort {
		log.Warn().
			Int("configuredPort", configuredPort).
			Int("actualPort", actualPort).
			Msg("configured port in use, using alternative port")
		cfg.Server.Port = actualPort
	}
	serverURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)
	log.SetBroadcastHub(hub)

	var cmds *commands.Service
	quitChan := make(chan struct{})

	app := platform.NewApp(platform.AppConfig{
		ServerURL: serverURL,
		DataDir:   cfg.Data.Dir,
		NoTray:    cfg.Window.NoTray,
		OnOpen: func() {
			go func() {
				if _, err := cmds.LoadWindow(ctx); err != nil {
					log.Error().Err(err).Msg("failed to open window from tray")
				}
			}()
		},
		OnQuit: func() { close(quitChan) },
	})

	controller := window.NewController(window.NewBrowserBackend(serverURL, app, hub), log.Logger)
	hub.Handle("window:closed", func(payload json.RawMessage) error {
		var ev window.EventPayload
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("invalid window:closed payload: %w", err)
		}
		controller.Forget(ev.Label, ev.ID)
		return nil
	})

	store := settings.NewStore(cfg.Data.Dir, log.Logger)
	cmds = commands.NewService(commands.Deps{
		Store:    store,
		Document: cfg.Settings.Document,
		Windows:  controller,
		Memory:   sysinfo.NewService(sysinfo.HostReader(), log.Logger),
		Keys: keycheck.New(keycheck.Config{
			Endpoint: cfg.Validation.Endpoint,
			Timeout:  cfg.Validation.Timeout,
		}, log.Logger),
		Opener: app,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := tasks.RegisterDatabaseMaintenanceTask(sched, dbManager, cfg.Maintenance.Cron); err != nil {
		return fmt.Errorf("failed to register maintenance task: %w", err)
	}
	sched.Start()

	deps := api.Deps{
		Commands:  cmds,
		Store:     store,
		SQL:       sqlbridge.NewService(dbManager, log.Logger),
		Backup:    backup.NewService(dbManager, config.Version, log.Logger),
		Windows:   controller,
		Databases: dbManager,
		Hub:       hub,
		Logs:      log,
		Scheduler: sched,
	}
	if distFS, err := web.DistFS(); err == nil {
		deps.Frontend = distFS
	} else {
		log.Warn().Err(err).Msg("embedded UI unavailable")
	}
	server := api.NewServer(deps, cfg, log.Logger)

	addr := cfg.Server.Address()
	if err := server.Listen(addr); err != nil {
		return err
	}
	bootstrapLog(fmt.Sprintf("HTTP server listening on %s", addr))

	go func() {
		if err := server.Start(addr); err != nil {
			log.Info().Err(err).Msg("server stopped")
		}
	}()

	// The splash page decides which window to show once it loads. The
	// listener is already bound, so the page cannot be refused.
	go func() {
		if _, err := controller.Create(ctx, window.IndexConfig()); err != nil {
			log.Error().Err(err).Msg("failed to open splash window")
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
			log.Info().Msg("received shutdown signal")
			app.Stop()
		case <-quitChan:
		}
	}()

	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("platform app error")
	}
	bootstrapLog("app.Run() returned, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	cancel()

	log.Info().Msg("Open2E stopped")
	return nil
}
