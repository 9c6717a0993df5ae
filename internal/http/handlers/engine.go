package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/service"
)

// EngineHandler handles engine pause/resume/status endpoints.
type EngineHandler struct {
	jobs *service.JobService
}

// NewEngineHandler creates a new engine handler.
func NewEngineHandler(jobs *service.JobService) *EngineHandler {
	return &EngineHandler{jobs: jobs}
}

// Register registers the engine routes with the API.
func (h *EngineHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "pauseEngine",
		Method:      "POST",
		Path:        "/api/v1/engine/pause",
		Summary:     "Pause engine",
		Description: "Stops claiming new work; in-flight jobs continue",
		Tags:        []string{"Engine"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "resumeEngine",
		Method:      "POST",
		Path:        "/api/v1/engine/resume",
		Summary:     "Resume engine",
		Tags:        []string{"Engine"},
	}, h.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "getEngineStatus",
		Method:      "GET",
		Path:        "/api/v1/engine/status",
		Summary:     "Engine status",
		Tags:        []string{"Engine"},
	}, h.Status)
}

// EngineActionInput is empty.
type EngineActionInput struct{}

// EngineActionOutput acknowledges the action.
type EngineActionOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// Pause pauses the engine.
func (h *EngineHandler) Pause(ctx context.Context, input *EngineActionInput) (*EngineActionOutput, error) {
	h.jobs.Pause()
	resp := &EngineActionOutput{}
	resp.Body.Success = true
	return resp, nil
}

// Resume resumes the engine.
func (h *EngineHandler) Resume(ctx context.Context, input *EngineActionInput) (*EngineActionOutput, error) {
	h.jobs.Resume()
	resp := &EngineActionOutput{}
	resp.Body.Success = true
	return resp, nil
}

// EngineStatusOutput is the engine status view.
type EngineStatusOutput struct {
	Body service.EngineStatus
}

// Status returns the engine status.
func (h *EngineHandler) Status(ctx context.Context, input *EngineActionInput) (*EngineStatusOutput, error) {
	status, err := h.jobs.Status(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get engine status", err)
	}
	return &EngineStatusOutput{Body: *status}, nil
}
