// Package notify delivers job lifecycle notifications to configured
// Discord, Gotify, and generic webhook targets. Delivery failures are
// logged and never affect the pipeline.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bybrooklyn/alchemist/internal/httpclient"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
)

// Discord embed colors per event.
const (
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorBlue   = 0x3498DB
)

// Service fans job events out to the enabled targets subscribed to them.
type Service struct {
	targets repository.NotificationTargetRepository
	client  *httpclient.Client
	logger  *slog.Logger
}

// NewService creates a notification service.
func NewService(targets repository.NotificationTargetRepository, client *httpclient.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		targets: targets,
		client:  client,
		logger:  logger,
	}
}

// NotifyJob delivers a job event to every enabled, subscribed target.
func (s *Service) NotifyJob(ctx context.Context, event models.NotificationEvent, job *models.Job, detail string) {
	targets, err := s.targets.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("loading notification targets", slog.String("error", err.Error()))
		return
	}

	for _, target := range targets {
		if !target.SubscribedTo(event) {
			continue
		}
		if err := s.send(ctx, target, event, job, detail); err != nil {
			s.logger.Warn("notification delivery failed",
				slog.String("target", target.Name),
				slog.String("event", string(event)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Test sends a test message to one target, returning the delivery error.
func (s *Service) Test(ctx context.Context, target *models.NotificationTarget) error {
	job := &models.Job{InputPath: "/library/example.mkv"}
	return s.send(ctx, target, models.NotifyOnQueued, job, "test notification")
}

// send renders and posts the payload for one target type.
func (s *Service) send(ctx context.Context, target *models.NotificationTarget, event models.NotificationEvent, job *models.Job, detail string) error {
	title, message, color := renderMessage(event, job, detail)

	switch target.TargetType {
	case models.NotifyDiscord:
		return s.sendDiscord(ctx, target, title, message, color)
	case models.NotifyGotify:
		return s.sendGotify(ctx, target, title, message)
	case models.NotifyWebhook:
		return s.sendWebhook(ctx, target, event, job, message)
	default:
		return fmt.Errorf("unknown target type %q", target.TargetType)
	}
}

// renderMessage builds the human-readable notification text.
func renderMessage(event models.NotificationEvent, job *models.Job, detail string) (title, message string, color int) {
	switch event {
	case models.NotifyOnCompleted:
		title = "Encode completed"
		color = colorGreen
	case models.NotifyOnFailed:
		title = "Encode failed"
		color = colorRed
	default:
		title = "File queued"
		color = colorBlue
	}

	message = job.InputPath
	if detail != "" {
		message += "\n" + detail
	}
	return title, message, color
}

// sendDiscord posts a webhook embed.
func (s *Service) sendDiscord(ctx context.Context, target *models.NotificationTarget, title, message string, color int) error {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       color,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding discord payload: %w", err)
	}
	return s.client.PostJSON(ctx, target.EndpointURL, body, nil)
}

// sendGotify posts a Gotify message; the token travels in the header.
func (s *Service) sendGotify(ctx context.Context, target *models.NotificationTarget, title, message string) error {
	payload := map[string]any{
		"title":    title,
		"message":  message,
		"priority": 5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding gotify payload: %w", err)
	}

	headers := map[string]string{}
	if target.AuthToken != "" {
		headers["X-Gotify-Key"] = target.AuthToken
	}
	return s.client.PostJSON(ctx, target.EndpointURL, body, headers)
}

// sendWebhook posts the generic JSON payload.
func (s *Service) sendWebhook(ctx context.Context, target *models.NotificationTarget, event models.NotificationEvent, job *models.Job, message string) error {
	payload := map[string]any{
		"event":      string(event),
		"job_id":     job.ID.String(),
		"input_path": job.InputPath,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"source":     "alchemist",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	headers := map[string]string{}
	if target.AuthToken != "" {
		headers["Authorization"] = "Bearer " + target.AuthToken
	}
	return s.client.PostJSON(ctx, target.EndpointURL, body, headers)
}
