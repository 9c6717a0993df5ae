package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/service"
	"github.com/bybrooklyn/alchemist/pkg/format"
)

// StatsHandler handles statistics endpoints.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Register registers the stats routes with the API.
func (h *StatsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getAggregatedStats",
		Method:      "GET",
		Path:        "/api/v1/stats/aggregated",
		Summary:     "Aggregated stats",
		Tags:        []string{"Stats"},
	}, h.Aggregated)

	huma.Register(api, huma.Operation{
		OperationID: "getDailyStats",
		Method:      "GET",
		Path:        "/api/v1/stats/daily",
		Summary:     "Daily stats",
		Description: "Per-day completion rollups over the trailing 30 days",
		Tags:        []string{"Stats"},
	}, h.Daily)

	huma.Register(api, huma.Operation{
		OperationID: "getDetailedStats",
		Method:      "GET",
		Path:        "/api/v1/stats/detailed",
		Summary:     "Detailed stats",
		Description: "Recently completed jobs with their encode stats",
		Tags:        []string{"Stats"},
	}, h.Detailed)
}

// StatsInput is empty.
type StatsInput struct{}

// AggregatedStatsOutput returns library-wide totals.
type AggregatedStatsOutput struct {
	Body struct {
		repository.AggregatedStats
		SavedHuman string `json:"saved_human"`
	}
}

// Aggregated returns library-wide totals.
func (h *StatsHandler) Aggregated(ctx context.Context, input *StatsInput) (*AggregatedStatsOutput, error) {
	agg, err := h.stats.Aggregated(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to aggregate stats", err)
	}

	resp := &AggregatedStatsOutput{}
	resp.Body.AggregatedStats = *agg
	resp.Body.SavedHuman = format.Bytes(agg.SavedBytes)
	return resp, nil
}

// DailyStatsOutput returns the daily rollup.
type DailyStatsOutput struct {
	Body struct {
		Days []repository.DailyStat `json:"days"`
	}
}

// Daily returns the trailing-30-day rollup.
func (h *StatsHandler) Daily(ctx context.Context, input *StatsInput) (*DailyStatsOutput, error) {
	days, err := h.stats.Daily(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load daily stats", err)
	}
	resp := &DailyStatsOutput{}
	resp.Body.Days = days
	return resp, nil
}

// DetailedStatsInput bounds the listing.
type DetailedStatsInput struct {
	Limit int `query:"limit" doc:"Maximum rows (default 20)" required:"false"`
}

// DetailedStatsOutput returns recent completed jobs with stats.
type DetailedStatsOutput struct {
	Body struct {
		Jobs []JobDetailResponse `json:"jobs"`
	}
}

// Detailed returns recent completed jobs with stats.
func (h *StatsHandler) Detailed(ctx context.Context, input *DetailedStatsInput) (*DetailedStatsOutput, error) {
	details, err := h.stats.Detailed(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load detailed stats", err)
	}

	resp := &DetailedStatsOutput{}
	resp.Body.Jobs = make([]JobDetailResponse, 0, len(details))
	for _, d := range details {
		resp.Body.Jobs = append(resp.Body.Jobs, JobDetailResponse{
			Job:            JobFromModel(d.Job),
			Stats:          d.Stats,
			LatestDecision: d.LatestDecision,
		})
	}
	return resp, nil
}
