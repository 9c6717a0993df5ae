package models

import (
	"strings"

	"gorm.io/gorm"
)

// WatchDir is a directory monitored for new or changed media files.
type WatchDir struct {
	BaseModel

	Path      string `gorm:"not null;uniqueIndex;size:4096" json:"path"`
	Recursive bool   `gorm:"default:true" json:"recursive"`
	Enabled   bool   `gorm:"default:true" json:"enabled"`

	// Extensions is an optional comma-separated list overriding the global
	// extension allowlist for this directory (e.g. "mkv,mp4").
	Extensions string `gorm:"size:512" json:"extensions,omitempty"`
}

// TableName returns the table name for WatchDir.
func (WatchDir) TableName() string {
	return "watch_dirs"
}

// ExtensionList returns the per-directory extension override, lowercased and
// with leading dots stripped. Nil means no override.
func (w *WatchDir) ExtensionList() []string {
	if strings.TrimSpace(w.Extensions) == "" {
		return nil
	}
	parts := strings.Split(w.Extensions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(p, ".")))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate performs basic validation on the watch directory.
func (w *WatchDir) Validate() error {
	if strings.TrimSpace(w.Path) == "" {
		return ErrPathRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the watch directory.
func (w *WatchDir) BeforeCreate(tx *gorm.DB) error {
	if err := w.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return w.Validate()
}
