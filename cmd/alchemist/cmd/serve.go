package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bybrooklyn/alchemist/internal/database"
	"github.com/bybrooklyn/alchemist/internal/database/migrations"
	"github.com/bybrooklyn/alchemist/internal/encoder"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/hardware"
	internalhttp "github.com/bybrooklyn/alchemist/internal/http"
	"github.com/bybrooklyn/alchemist/internal/http/handlers"
	"github.com/bybrooklyn/alchemist/internal/httpclient"
	"github.com/bybrooklyn/alchemist/internal/notify"
	"github.com/bybrooklyn/alchemist/internal/observability"
	"github.com/bybrooklyn/alchemist/internal/orchestrator"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/scanner"
	"github.com/bybrooklyn/alchemist/internal/scheduler"
	"github.com/bybrooklyn/alchemist/internal/service"
	"github.com/bybrooklyn/alchemist/internal/service/logs"
	"github.com/bybrooklyn/alchemist/internal/settings"
	"github.com/bybrooklyn/alchemist/internal/startup"
	"github.com/bybrooklyn/alchemist/internal/version"
	"github.com/bybrooklyn/alchemist/internal/watcher"
)

// serveCmd starts the alchemist server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the alchemist server",
	Long: `Start the alchemist HTTP server, scheduler, and file watcher.

The server provides:
- REST API for jobs, settings, schedules, and stats
- Server-sent event stream for the dashboard
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database + migrations.
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		return err
	}

	// Repositories.
	jobRepo := repository.NewJobRepository(db.DB)
	decisionRepo := repository.NewDecisionRepository(db.DB)
	statsRepo := repository.NewEncodeStatsRepository(db.DB)
	watchDirRepo := repository.NewWatchDirRepository(db.DB)
	windowRepo := repository.NewScheduleWindowRepository(db.DB)
	targetRepo := repository.NewNotificationTargetRepository(db.DB)
	logRepo := repository.NewLogRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	// Event bus + log mirroring into the store and stream.
	bus := events.NewBus(events.DefaultBufferSize)
	logsService := logs.New(logRepo, bus)
	logger = slog.New(logsService.WrapHandler(logger.Handler()))
	observability.SetDefault(logger)

	// Crash recovery: orphaned in-flight rows re-queue, stale partials go.
	settingsService := settings.NewService(settingsRepo, cfg)
	snap, err := settingsService.Snapshot(ctx)
	if err != nil {
		return err
	}
	if reset, err := jobRepo.ResetInterrupted(ctx); err != nil {
		logger.Warn("resetting interrupted jobs", slog.String("error", err.Error()))
	} else if reset > 0 {
		logger.Info("re-queued interrupted jobs", slog.Int64("count", reset))
	}
	if dirs, err := watchDirRepo.GetAll(ctx); err == nil {
		roots := make([]string, 0, len(dirs))
		for _, d := range dirs {
			roots = append(roots, d.Path)
		}
		startup.CleanupPartialFiles(logger, roots)
	}

	// External tools and hardware.
	binaries, err := ffmpeg.ResolveBinaries(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return err
	}
	caps, err := ffmpeg.DetectCapabilities(ctx, binaries.FFmpegPath)
	if err != nil {
		return err
	}
	hw := hardware.Detect(logger)

	prober := ffmpeg.NewProber(binaries.FFprobePath).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	runner := encoder.NewRunner(binaries, caps, hw, observability.WithComponent(logger, "encoder"))

	// Notifications.
	httpClient := httpclient.New(httpclient.DefaultConfig(), logger)
	notifier := notify.NewService(targetRepo, httpClient, observability.WithComponent(logger, "notify"))

	// Pipeline: orchestrator, engine, scheduler.
	orch := orchestrator.New(
		jobRepo, decisionRepo, statsRepo, logRepo,
		prober, runner, bus, notifier,
		observability.WithComponent(logger, "orchestrator"),
	)
	engine := scheduler.NewEngine()
	sched := scheduler.NewScheduler(
		jobRepo, windowRepo, settingsService, engine, orch,
		observability.WithComponent(logger, "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// Discovery: scanner + watcher.
	scan := scanner.NewScanner(jobRepo, watchDirRepo, settingsService, bus,
		observability.WithComponent(logger, "scanner"))
	watch := watcher.New(jobRepo, watchDirRepo, settingsService, scan, bus,
		observability.WithComponent(logger, "watcher"))
	if err := watch.Start(ctx); err != nil {
		logger.Warn("file watcher unavailable", slog.String("error", err.Error()))
	} else {
		defer watch.Stop()
	}

	// Maintenance cron.
	maintenance := service.NewMaintenance(logRepo, sessionRepo, settingsService,
		observability.WithComponent(logger, "maintenance"))
	if err := maintenance.Start(ctx); err != nil {
		return err
	}
	defer maintenance.Stop()

	// Services + HTTP surface.
	jobService := service.NewJobService(jobRepo, engine, settingsService, bus, logger)
	statsService := service.NewStatsService(jobRepo)

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     internalhttp.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Short())

	handlers.NewJobHandler(jobService).Register(server.API())
	handlers.NewEngineHandler(jobService).Register(server.API())
	handlers.NewSettingsHandler(settingsService, windowRepo, watchDirRepo, targetRepo, notifier, watch).Register(server.API())
	handlers.NewScanHandler(scan).Register(server.API())
	handlers.NewStatsHandler(statsService).Register(server.API())
	handlers.NewLogsHandler(logRepo).Register(server.API())
	handlers.NewSystemHandler(version.Short(), db.DB, hw, binaries).Register(server.API())
	handlers.NewEventsHandler(bus, logger).Register(server.Router())

	logger.Info("alchemist started",
		slog.String("version", version.Short()),
		slog.String("hardware", hw.Vendor.String()),
		slog.Int("concurrent_jobs", snap.Transcode.ConcurrentJobs),
	)

	return server.ListenAndServe(ctx)
}
