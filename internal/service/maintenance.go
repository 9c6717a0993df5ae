package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// Maintenance cron schedules.
const (
	logSweepSchedule     = "*/30 * * * *" // every 30 minutes
	sessionSweepSchedule = "17 * * * *"   // hourly
)

// Maintenance runs periodic housekeeping: bounding the log table and
// expiring stale sessions.
type Maintenance struct {
	logs     repository.LogRepository
	sessions repository.SessionRepository
	settings *settings.Service
	logger   *slog.Logger

	cron *cron.Cron
}

// NewMaintenance creates the maintenance service.
func NewMaintenance(
	logs repository.LogRepository,
	sessions repository.SessionRepository,
	settingsSvc *settings.Service,
	logger *slog.Logger,
) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		logs:     logs,
		sessions: sessions,
		settings: settingsSvc,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the cron entries and begins running them.
func (m *Maintenance) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(logSweepSchedule, func() { m.sweepLogs(ctx) }); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(sessionSweepSchedule, func() { m.sweepSessions(ctx) }); err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info("maintenance scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for running entries.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

// sweepLogs bounds the log table to the configured row count.
func (m *Maintenance) sweepLogs(ctx context.Context) {
	keep := m.settings.Cached().System.LogRetainRows
	removed, err := m.logs.Sweep(ctx, keep)
	if err != nil {
		m.logger.Error("log sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		m.logger.Debug("log sweep", slog.Int64("removed", removed))
	}
}

// sweepSessions expires stale sessions.
func (m *Maintenance) sweepSessions(ctx context.Context) {
	removed, err := m.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error("session sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		m.logger.Debug("session sweep", slog.Int64("removed", removed))
	}
}
