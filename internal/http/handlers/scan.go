package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/scanner"
)

// ScanHandler handles library scan endpoints.
type ScanHandler struct {
	scanner *scanner.Scanner
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(s *scanner.Scanner) *ScanHandler {
	return &ScanHandler{scanner: s}
}

// Register registers the scan routes with the API.
func (h *ScanHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startScan",
		Method:      "POST",
		Path:        "/api/v1/scan/start",
		Summary:     "Start library scan",
		Description: "Walks every enabled watch directory once, enqueueing eligible files",
		Tags:        []string{"Scan"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "getScanStatus",
		Method:      "GET",
		Path:        "/api/v1/scan/status",
		Summary:     "Scan status",
		Tags:        []string{"Scan"},
	}, h.Status)
}

// ScanActionInput is empty.
type ScanActionInput struct{}

// ScanStatusOutput reports scan progress.
type ScanStatusOutput struct {
	Body scanner.Status
}

// Start begins a scan; a scan already running is left alone.
func (h *ScanHandler) Start(ctx context.Context, input *ScanActionInput) (*ScanStatusOutput, error) {
	if err := h.scanner.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, huma.Error500InternalServerError("failed to start scan", err)
	}
	return &ScanStatusOutput{Body: h.scanner.Status()}, nil
}

// Status returns the current scan status.
func (h *ScanHandler) Status(ctx context.Context, input *ScanActionInput) (*ScanStatusOutput, error) {
	return &ScanStatusOutput{Body: h.scanner.Status()}, nil
}
