package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/notify"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// WatchDirRefresher is notified after watch-dir edits so new roots take
// effect without a restart.
type WatchDirRefresher interface {
	Refresh(ctx context.Context) error
}

// SettingsHandler handles runtime settings, schedule windows, watch dirs,
// and notification targets.
type SettingsHandler struct {
	settings  *settings.Service
	windows   repository.ScheduleWindowRepository
	watchDirs repository.WatchDirRepository
	targets   repository.NotificationTargetRepository
	notifier  *notify.Service
	refresher WatchDirRefresher
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(
	settingsSvc *settings.Service,
	windows repository.ScheduleWindowRepository,
	watchDirs repository.WatchDirRepository,
	targets repository.NotificationTargetRepository,
	notifier *notify.Service,
	refresher WatchDirRefresher,
) *SettingsHandler {
	return &SettingsHandler{
		settings:  settingsSvc,
		windows:   windows,
		watchDirs: watchDirs,
		targets:   targets,
		notifier:  notifier,
		refresher: refresher,
	}
}

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      "GET",
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Description: "Returns the current runtime settings snapshot",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateSettings",
		Method:      "PUT",
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Persists key/value setting edits; in-flight jobs keep their snapshot",
		Tags:        []string{"Settings"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "listScheduleWindows",
		Method:      "GET",
		Path:        "/api/v1/settings/schedule",
		Summary:     "List schedule windows",
		Tags:        []string{"Settings"},
	}, h.ListWindows)

	huma.Register(api, huma.Operation{
		OperationID: "addScheduleWindow",
		Method:      "POST",
		Path:        "/api/v1/settings/schedule",
		Summary:     "Add schedule window",
		Tags:        []string{"Settings"},
	}, h.AddWindow)

	huma.Register(api, huma.Operation{
		OperationID: "deleteScheduleWindow",
		Method:      "DELETE",
		Path:        "/api/v1/settings/schedule/{id}",
		Summary:     "Delete schedule window",
		Tags:        []string{"Settings"},
	}, h.DeleteWindow)

	huma.Register(api, huma.Operation{
		OperationID: "listWatchDirs",
		Method:      "GET",
		Path:        "/api/v1/settings/watch-dirs",
		Summary:     "List watch directories",
		Tags:        []string{"Settings"},
	}, h.ListWatchDirs)

	huma.Register(api, huma.Operation{
		OperationID: "addWatchDir",
		Method:      "POST",
		Path:        "/api/v1/settings/watch-dirs",
		Summary:     "Add watch directory",
		Tags:        []string{"Settings"},
	}, h.AddWatchDir)

	huma.Register(api, huma.Operation{
		OperationID: "deleteWatchDir",
		Method:      "DELETE",
		Path:        "/api/v1/settings/watch-dirs/{id}",
		Summary:     "Delete watch directory",
		Tags:        []string{"Settings"},
	}, h.DeleteWatchDir)

	huma.Register(api, huma.Operation{
		OperationID: "listNotificationTargets",
		Method:      "GET",
		Path:        "/api/v1/settings/notifications",
		Summary:     "List notification targets",
		Tags:        []string{"Settings"},
	}, h.ListTargets)

	huma.Register(api, huma.Operation{
		OperationID: "addNotificationTarget",
		Method:      "POST",
		Path:        "/api/v1/settings/notifications",
		Summary:     "Add notification target",
		Tags:        []string{"Settings"},
	}, h.AddTarget)

	huma.Register(api, huma.Operation{
		OperationID: "deleteNotificationTarget",
		Method:      "DELETE",
		Path:        "/api/v1/settings/notifications/{id}",
		Summary:     "Delete notification target",
		Tags:        []string{"Settings"},
	}, h.DeleteTarget)

	huma.Register(api, huma.Operation{
		OperationID: "testNotificationTarget",
		Method:      "POST",
		Path:        "/api/v1/settings/notifications/{id}/test",
		Summary:     "Send a test notification",
		Tags:        []string{"Settings"},
	}, h.TestTarget)
}

// GetSettingsInput is empty.
type GetSettingsInput struct{}

// GetSettingsOutput returns the typed snapshot.
type GetSettingsOutput struct {
	Body settings.Snapshot
}

// Get returns the current settings snapshot.
func (h *SettingsHandler) Get(ctx context.Context, input *GetSettingsInput) (*GetSettingsOutput, error) {
	snap, err := h.settings.Snapshot(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load settings", err)
	}
	return &GetSettingsOutput{Body: snap}, nil
}

// UpdateSettingsInput carries key/value edits.
type UpdateSettingsInput struct {
	Body struct {
		Values map[string]string `json:"values" doc:"Setting edits keyed as section.name"`
	}
}

// UpdateSettingsOutput returns the snapshot after the edit.
type UpdateSettingsOutput struct {
	Body settings.Snapshot
}

// Update persists setting edits.
func (h *SettingsHandler) Update(ctx context.Context, input *UpdateSettingsInput) (*UpdateSettingsOutput, error) {
	if err := h.settings.Update(ctx, input.Body.Values); err != nil {
		return nil, huma.Error400BadRequest("invalid settings", err)
	}
	snap, err := h.settings.Snapshot(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to reload settings", err)
	}
	return &UpdateSettingsOutput{Body: snap}, nil
}

// ListWindowsInput is empty.
type ListWindowsInput struct{}

// ListWindowsOutput lists schedule windows.
type ListWindowsOutput struct {
	Body struct {
		Windows []*models.ScheduleWindow `json:"windows"`
	}
}

// ListWindows returns all schedule windows.
func (h *SettingsHandler) ListWindows(ctx context.Context, input *ListWindowsInput) (*ListWindowsOutput, error) {
	windows, err := h.windows.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list schedule windows", err)
	}
	resp := &ListWindowsOutput{}
	resp.Body.Windows = windows
	return resp, nil
}

// AddWindowInput creates a schedule window.
type AddWindowInput struct {
	Body struct {
		StartTime  string `json:"start_time" doc:"HH:MM local time"`
		EndTime    string `json:"end_time" doc:"HH:MM local time; earlier than start wraps midnight"`
		DaysOfWeek string `json:"days_of_week,omitempty" doc:"Comma list of 0..6 (0=Sunday); empty = every day"`
		Enabled    bool   `json:"enabled"`
	}
}

// AddWindowOutput returns the created window.
type AddWindowOutput struct {
	Body *models.ScheduleWindow
}

// AddWindow creates a schedule window.
func (h *SettingsHandler) AddWindow(ctx context.Context, input *AddWindowInput) (*AddWindowOutput, error) {
	window := &models.ScheduleWindow{
		StartTime:  input.Body.StartTime,
		EndTime:    input.Body.EndTime,
		DaysOfWeek: input.Body.DaysOfWeek,
		Enabled:    input.Body.Enabled,
	}
	if err := window.Validate(); err != nil {
		return nil, huma.Error400BadRequest("invalid schedule window", err)
	}
	if err := h.windows.Create(ctx, window); err != nil {
		return nil, huma.Error500InternalServerError("failed to create schedule window", err)
	}
	return &AddWindowOutput{Body: window}, nil
}

// DeleteByIDInput identifies one row.
type DeleteByIDInput struct {
	ID string `path:"id" doc:"Row ID (ULID)"`
}

// DeleteByIDOutput acknowledges a deletion.
type DeleteByIDOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// DeleteWindow removes a schedule window.
func (h *SettingsHandler) DeleteWindow(ctx context.Context, input *DeleteByIDInput) (*DeleteByIDOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.windows.Delete(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete schedule window", err)
	}
	resp := &DeleteByIDOutput{}
	resp.Body.Success = true
	return resp, nil
}

// ListWatchDirsInput is empty.
type ListWatchDirsInput struct{}

// ListWatchDirsOutput lists watch directories.
type ListWatchDirsOutput struct {
	Body struct {
		Dirs []*models.WatchDir `json:"dirs"`
	}
}

// ListWatchDirs returns all watch directories.
func (h *SettingsHandler) ListWatchDirs(ctx context.Context, input *ListWatchDirsInput) (*ListWatchDirsOutput, error) {
	dirs, err := h.watchDirs.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list watch dirs", err)
	}
	resp := &ListWatchDirsOutput{}
	resp.Body.Dirs = dirs
	return resp, nil
}

// AddWatchDirInput creates a watch directory.
type AddWatchDirInput struct {
	Body struct {
		Path       string `json:"path"`
		Recursive  bool   `json:"recursive"`
		Enabled    bool   `json:"enabled"`
		Extensions string `json:"extensions,omitempty" doc:"Optional per-dir extension override (comma list)"`
	}
}

// AddWatchDirOutput returns the created row.
type AddWatchDirOutput struct {
	Body *models.WatchDir
}

// AddWatchDir creates a watch directory and refreshes the watcher.
func (h *SettingsHandler) AddWatchDir(ctx context.Context, input *AddWatchDirInput) (*AddWatchDirOutput, error) {
	dir := &models.WatchDir{
		Path:       input.Body.Path,
		Recursive:  input.Body.Recursive,
		Enabled:    input.Body.Enabled,
		Extensions: input.Body.Extensions,
	}
	if err := dir.Validate(); err != nil {
		return nil, huma.Error400BadRequest("invalid watch dir", err)
	}
	if err := h.watchDirs.Create(ctx, dir); err != nil {
		return nil, huma.Error500InternalServerError("failed to create watch dir", err)
	}
	if h.refresher != nil {
		if err := h.refresher.Refresh(ctx); err != nil {
			return nil, huma.Error500InternalServerError("failed to refresh watcher", err)
		}
	}
	return &AddWatchDirOutput{Body: dir}, nil
}

// DeleteWatchDir removes a watch directory and refreshes the watcher.
func (h *SettingsHandler) DeleteWatchDir(ctx context.Context, input *DeleteByIDInput) (*DeleteByIDOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.watchDirs.Delete(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete watch dir", err)
	}
	if h.refresher != nil {
		if err := h.refresher.Refresh(ctx); err != nil {
			return nil, huma.Error500InternalServerError("failed to refresh watcher", err)
		}
	}
	resp := &DeleteByIDOutput{}
	resp.Body.Success = true
	return resp, nil
}

// ListTargetsInput is empty.
type ListTargetsInput struct{}

// ListTargetsOutput lists notification targets.
type ListTargetsOutput struct {
	Body struct {
		Targets []*models.NotificationTarget `json:"targets"`
	}
}

// ListTargets returns all notification targets.
func (h *SettingsHandler) ListTargets(ctx context.Context, input *ListTargetsInput) (*ListTargetsOutput, error) {
	targets, err := h.targets.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list notification targets", err)
	}
	resp := &ListTargetsOutput{}
	resp.Body.Targets = targets
	return resp, nil
}

// AddTargetInput creates a notification target.
type AddTargetInput struct {
	Body struct {
		Name        string `json:"name"`
		TargetType  string `json:"target_type" enum:"discord,gotify,webhook"`
		EndpointURL string `json:"endpoint_url"`
		AuthToken   string `json:"auth_token,omitempty"`
		Events      string `json:"events" doc:"Comma subset of queued,completed,failed"`
		Enabled     bool   `json:"enabled"`
	}
}

// AddTargetOutput returns the created target.
type AddTargetOutput struct {
	Body *models.NotificationTarget
}

// AddTarget creates a notification target.
func (h *SettingsHandler) AddTarget(ctx context.Context, input *AddTargetInput) (*AddTargetOutput, error) {
	target := &models.NotificationTarget{
		Name:        input.Body.Name,
		TargetType:  models.NotificationType(input.Body.TargetType),
		EndpointURL: input.Body.EndpointURL,
		AuthToken:   input.Body.AuthToken,
		Events:      input.Body.Events,
		Enabled:     input.Body.Enabled,
	}
	if err := target.Validate(); err != nil {
		return nil, huma.Error400BadRequest("invalid notification target", err)
	}
	if err := h.targets.Create(ctx, target); err != nil {
		return nil, huma.Error500InternalServerError("failed to create notification target", err)
	}
	return &AddTargetOutput{Body: target}, nil
}

// DeleteTarget removes a notification target.
func (h *SettingsHandler) DeleteTarget(ctx context.Context, input *DeleteByIDInput) (*DeleteByIDOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.targets.Delete(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete notification target", err)
	}
	resp := &DeleteByIDOutput{}
	resp.Body.Success = true
	return resp, nil
}

// TestTarget sends a test message through one target.
func (h *SettingsHandler) TestTarget(ctx context.Context, input *DeleteByIDInput) (*DeleteByIDOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	target, err := h.targets.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load notification target", err)
	}
	if target == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("notification target %s not found", input.ID))
	}
	if err := h.notifier.Test(ctx, target); err != nil {
		return nil, huma.Error502BadGateway("test notification failed", err)
	}
	resp := &DeleteByIDOutput{}
	resp.Body.Success = true
	return resp, nil
}
