// Package handlers provides HTTP API handlers for alchemist.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/service"
)

// JobResponse is the API view of a job.
type JobResponse struct {
	ID           string    `json:"id"`
	InputPath    string    `json:"input_path"`
	OutputPath   string    `json:"output_path"`
	Status       string    `json:"status"`
	Priority     int       `json:"priority"`
	Progress     float64   `json:"progress"`
	AttemptCount int       `json:"attempt_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobFromModel converts a job model into its API view.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:           j.ID.String(),
		InputPath:    j.InputPath,
		OutputPath:   j.OutputPath,
		Status:       string(j.Status),
		Priority:     j.Priority,
		Progress:     j.Progress,
		AttemptCount: j.AttemptCount,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// JobHandler handles job API endpoints.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns jobs with filtering, search, sorting, and pagination",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job details",
		Description: "Returns a job with its encode stats and latest decision",
		Tags:        []string{"Jobs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel job",
		Tags:        []string{"Jobs"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "restartJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/restart",
		Summary:     "Restart job",
		Description: "Re-queues a terminal job; its attempt count increases by one",
		Tags:        []string{"Jobs"},
	}, h.Restart)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Tags:        []string{"Jobs"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "bulkJobAction",
		Method:      "POST",
		Path:        "/api/v1/jobs/bulk",
		Summary:     "Bulk job action",
		Description: "Applies cancel, restart, delete, or clear-completed to many jobs",
		Tags:        []string{"Jobs"},
	}, h.Bulk)
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Status   string `query:"status" doc:"Filter by status" required:"false"`
	Search   string `query:"search" doc:"Substring match on input path" required:"false"`
	SortBy   string `query:"sort_by" doc:"Sort column (created_at, updated_at, priority, status, input_path)" required:"false"`
	SortDesc bool   `query:"sort_desc" doc:"Reverse sort order" required:"false"`
	Page     int    `query:"page" doc:"1-based page number" required:"false"`
	PerPage  int    `query:"per_page" doc:"Page size (max 500)" required:"false"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs  []JobResponse `json:"jobs"`
		Total int64         `json:"total"`
	}
}

// List returns a filtered page of jobs.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	filter := repository.JobFilter{
		Status:   models.JobStatus(input.Status),
		Search:   input.Search,
		SortBy:   input.SortBy,
		SortDesc: input.SortDesc,
		Page:     input.Page,
		PerPage:  input.PerPage,
	}

	jobs, total, err := h.jobs.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Total = total
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	return resp, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// JobDetailResponse is the per-job view.
type JobDetailResponse struct {
	Job            JobResponse         `json:"job"`
	Stats          *models.EncodeStats `json:"stats,omitempty"`
	LatestDecision *models.Decision    `json:"latest_decision,omitempty"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobDetailResponse
}

// Get returns a job with its stats and latest decision.
func (h *JobHandler) Get(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	detail, err := h.jobs.Detail(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get job", err)
	}
	if detail == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
	}

	return &GetJobOutput{
		Body: JobDetailResponse{
			Job:            JobFromModel(detail.Job),
			Stats:          detail.Stats,
			LatestDecision: detail.LatestDecision,
		},
	}, nil
}

// JobActionInput identifies one job.
type JobActionInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// JobActionOutput reports one job action.
type JobActionOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// Cancel cancels a job.
func (h *JobHandler) Cancel(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.jobs.Cancel(ctx, id); err != nil {
		return nil, huma.Error409Conflict("failed to cancel job", err)
	}
	resp := &JobActionOutput{}
	resp.Body.Success = true
	return resp, nil
}

// Restart re-queues a terminal job.
func (h *JobHandler) Restart(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.jobs.Restart(ctx, id); err != nil {
		return nil, huma.Error409Conflict("failed to restart job", err)
	}
	resp := &JobActionOutput{}
	resp.Body.Success = true
	return resp, nil
}

// Delete removes a job.
func (h *JobHandler) Delete(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.jobs.Delete(ctx, id); err != nil {
		return nil, huma.Error409Conflict("failed to delete job", err)
	}
	resp := &JobActionOutput{}
	resp.Body.Success = true
	return resp, nil
}

// BulkJobInput is the input for a bulk action.
type BulkJobInput struct {
	Body struct {
		Action string   `json:"action" enum:"cancel,restart,delete,clear-completed" doc:"Bulk action to apply"`
		IDs    []string `json:"ids,omitempty" doc:"Job IDs; ignored for clear-completed"`
	}
}

// BulkJobOutput reports how many jobs were affected.
type BulkJobOutput struct {
	Body struct {
		Affected int64 `json:"affected"`
	}
}

// Bulk applies one action to many jobs.
func (h *JobHandler) Bulk(ctx context.Context, input *BulkJobInput) (*BulkJobOutput, error) {
	resp := &BulkJobOutput{}

	if input.Body.Action == "clear-completed" {
		affected, err := h.jobs.ClearCompleted(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to clear completed jobs", err)
		}
		resp.Body.Affected = affected
		return resp, nil
	}

	ids := make([]models.ULID, 0, len(input.Body.IDs))
	for _, raw := range input.Body.IDs {
		id, err := models.ParseULID(raw)
		if err != nil {
			return nil, huma.Error400BadRequest(fmt.Sprintf("invalid ID %q", raw), err)
		}
		ids = append(ids, id)
	}

	var done int
	var err error
	switch input.Body.Action {
	case "cancel":
		done, err = h.jobs.BulkCancel(ctx, ids)
	case "restart":
		done, err = h.jobs.BulkRestart(ctx, ids)
	case "delete":
		done, err = h.jobs.BulkDelete(ctx, ids)
	default:
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown action %q", input.Body.Action))
	}
	if err != nil && done == 0 {
		return nil, huma.Error500InternalServerError("bulk action failed", err)
	}

	resp.Body.Affected = int64(done)
	return resp, nil
}
