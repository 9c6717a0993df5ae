package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/hardware"
)

// SystemHandler handles health and system info endpoints.
type SystemHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	hw        *hardware.Info
	binaries  *ffmpeg.Binaries
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(version string, db *gorm.DB, hw *hardware.Info, binaries *ffmpeg.Binaries) *SystemHandler {
	return &SystemHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
		hw:        hw,
		binaries:  binaries,
	}
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.Health)

	huma.Register(api, huma.Operation{
		OperationID: "getSystemInfo",
		Method:      "GET",
		Path:        "/api/v1/system",
		Summary:     "System info",
		Description: "Returns host metrics, hardware detection, and tool paths",
		Tags:        []string{"System"},
	}, h.Info)
}

// HealthInput is empty.
type HealthInput struct{}

// HealthOutput reports liveness.
type HealthOutput struct {
	Body struct {
		Status   string  `json:"status"`
		Version  string  `json:"version"`
		UptimeS  float64 `json:"uptime_seconds"`
		Database string  `json:"database"`
	}
}

// Health reports liveness and database reachability.
func (h *SystemHandler) Health(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	resp := &HealthOutput{}
	resp.Body.Status = "ok"
	resp.Body.Version = h.version
	resp.Body.UptimeS = time.Since(h.startTime).Seconds()

	resp.Body.Database = "ok"
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			resp.Body.Status = "degraded"
			resp.Body.Database = "unreachable"
		}
	}
	return resp, nil
}

// SystemInfoInput is empty.
type SystemInfoInput struct{}

// SystemInfoOutput reports host metrics and tooling.
type SystemInfoOutput struct {
	Body struct {
		OS            string   `json:"os"`
		Arch          string   `json:"arch"`
		CPUCores      int      `json:"cpu_cores"`
		CPUPercent    float64  `json:"cpu_percent"`
		LoadAvg1      float64  `json:"load_avg_1m"`
		MemTotalBytes uint64   `json:"mem_total_bytes"`
		MemUsedBytes  uint64   `json:"mem_used_bytes"`
		HostUptimeS   uint64   `json:"host_uptime_seconds"`
		Hardware      hardware.Info   `json:"hardware"`
		Binaries      ffmpeg.Binaries `json:"binaries"`
	}
}

// Info returns host metrics, detected hardware, and tool paths.
func (h *SystemHandler) Info(ctx context.Context, input *SystemInfoInput) (*SystemInfoOutput, error) {
	resp := &SystemInfoOutput{}
	resp.Body.OS = runtime.GOOS
	resp.Body.Arch = runtime.GOARCH

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		resp.Body.CPUCores = counts
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		resp.Body.CPUPercent = percents[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Body.LoadAvg1 = avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Body.MemTotalBytes = vm.Total
		resp.Body.MemUsedBytes = vm.Used
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		resp.Body.HostUptimeS = uptime
	}

	if h.hw != nil {
		resp.Body.Hardware = *h.hw
	}
	if h.binaries != nil {
		resp.Body.Binaries = *h.binaries
	}
	return resp, nil
}
