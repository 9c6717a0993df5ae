package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
)

// LogsHandler handles log history endpoints.
type LogsHandler struct {
	logs repository.LogRepository
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(logs repository.LogRepository) *LogsHandler {
	return &LogsHandler{logs: logs}
}

// Register registers the log routes with the API.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogHistory",
		Method:      "GET",
		Path:        "/api/v1/logs",
		Summary:     "Log history",
		Description: "Returns a page of log rows, newest first",
		Tags:        []string{"Logs"},
	}, h.History)

	huma.Register(api, huma.Operation{
		OperationID: "clearLogs",
		Method:      "POST",
		Path:        "/api/v1/logs/clear",
		Summary:     "Clear logs",
		Tags:        []string{"Logs"},
	}, h.Clear)
}

// LogHistoryInput pages over log rows.
type LogHistoryInput struct {
	Page    int `query:"page" doc:"1-based page number" required:"false"`
	PerPage int `query:"per_page" doc:"Page size (max 500)" required:"false"`
}

// LogHistoryOutput returns a page of log rows.
type LogHistoryOutput struct {
	Body struct {
		Entries []*models.LogEntry `json:"entries"`
		Total   int64              `json:"total"`
	}
}

// History returns a page of log rows.
func (h *LogsHandler) History(ctx context.Context, input *LogHistoryInput) (*LogHistoryOutput, error) {
	entries, total, err := h.logs.History(ctx, input.Page, input.PerPage)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load log history", err)
	}

	resp := &LogHistoryOutput{}
	resp.Body.Entries = entries
	resp.Body.Total = total
	return resp, nil
}

// ClearLogsInput is empty.
type ClearLogsInput struct{}

// ClearLogsOutput acknowledges the clear.
type ClearLogsOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// Clear removes all log rows.
func (h *LogsHandler) Clear(ctx context.Context, input *ClearLogsInput) (*ClearLogsOutput, error) {
	if err := h.logs.Clear(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to clear logs", err)
	}
	resp := &ClearLogsOutput{}
	resp.Body.Success = true
	return resp, nil
}
