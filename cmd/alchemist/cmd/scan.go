package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bybrooklyn/alchemist/internal/database"
	"github.com/bybrooklyn/alchemist/internal/database/migrations"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/scanner"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// scanCmd performs a one-shot library scan without starting the server.
var scanCmd = &cobra.Command{
	Use:   "scan [directory...]",
	Short: "Scan directories and enqueue candidate files",
	Long: `Walks the given directories (or every enabled watch directory when
none are given) once and enqueues eligible media files. Jobs are picked up
the next time the server runs.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)
	logger := slog.Default()

	ctx := context.Background()

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

	jobRepo := repository.NewJobRepository(db.DB)
	watchDirRepo := repository.NewWatchDirRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	settingsService := settings.NewService(settingsRepo, cfg)

	snap, err := settingsService.Snapshot(ctx)
	if err != nil {
		return err
	}

	bus := events.NewBus(events.DefaultBufferSize)
	scan := scanner.NewScanner(jobRepo, watchDirRepo, settingsService, bus, logger)

	var dirs []*models.WatchDir
	if len(args) > 0 {
		for _, path := range args {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("directory %q: %w", path, err)
			}
			dirs = append(dirs, &models.WatchDir{Path: path, Recursive: true, Enabled: true})
		}
	} else {
		dirs, err = watchDirRepo.GetEnabled(ctx)
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			return fmt.Errorf("no directories given and no enabled watch directories configured")
		}
	}

	var totalFound, totalAdded int
	for _, dir := range dirs {
		found, added := scan.ScanRoot(ctx, dir, snap)
		totalFound += found
		totalAdded += added
	}

	fmt.Printf("Scanned %d directories: %d files found, %d enqueued\n", len(dirs), totalFound, totalAdded)
	return nil
}
