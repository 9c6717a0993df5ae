// Package logs mirrors slog records into the persistent log table and the
// event bus so the dashboard sees what the process logs.
package logs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
)

// minPersistLevel keeps debug chatter out of the database.
const minPersistLevel = slog.LevelInfo

// Service wraps a slog.Handler, persisting records and broadcasting them.
type Service struct {
	repo repository.LogRepository
	bus  *events.Bus
}

// New creates a logs service.
func New(repo repository.LogRepository, bus *events.Bus) *Service {
	return &Service{repo: repo, bus: bus}
}

// WrapHandler wraps an existing slog.Handler. The wrapped handler still
// writes to its destination; records at info and above are additionally
// persisted and broadcast.
func (s *Service) WrapHandler(handler slog.Handler) slog.Handler {
	return &mirrorHandler{service: s, wrapped: handler}
}

// capture persists one record without ever blocking the logging caller on
// database contention: the write runs on its own goroutine.
func (s *Service) capture(level slog.Level, message string, jobID *models.ULID) {
	levelName := strings.ToLower(level.String())
	s.bus.PublishLog(levelName, message, jobID)

	go func() {
		_ = s.repo.Record(context.Background(), levelName, jobID, message)
	}()
}

// mirrorHandler tees records into the service.
type mirrorHandler struct {
	service *Service
	wrapped slog.Handler
	attrs   []slog.Attr
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.wrapped.Enabled(ctx, level)
}

func (h *mirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= minPersistLevel {
		jobID := h.extractJobID(record)
		h.service.capture(record.Level, record.Message, jobID)
	}
	return h.wrapped.Handle(ctx, record)
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &mirrorHandler{
		service: h.service,
		wrapped: h.wrapped.WithAttrs(attrs),
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{
		service: h.service,
		wrapped: h.wrapped.WithGroup(name),
		attrs:   h.attrs,
	}
}

// extractJobID finds a job_id attribute on the record or the handler.
func (h *mirrorHandler) extractJobID(record slog.Record) *models.ULID {
	var found *models.ULID

	parse := func(a slog.Attr) {
		if a.Key != "job_id" || found != nil {
			return
		}
		if id, err := models.ParseULID(a.Value.String()); err == nil {
			found = &id
		}
	}

	for _, a := range h.attrs {
		parse(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		parse(a)
		return found == nil
	})
	return found
}
