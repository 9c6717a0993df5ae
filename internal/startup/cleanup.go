// Package startup provides utilities for application startup tasks.
package startup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bybrooklyn/alchemist/internal/encoder"
)

// CleanupPartialFiles removes orphaned .partial outputs under the given
// roots. A crash mid-encode can leave one behind; the matching job row is
// re-queued separately at boot, so the stale file is garbage.
//
// Returns the number of files removed.
func CleanupPartialFiles(logger *slog.Logger, roots []string) int {
	if logger == nil {
		logger = slog.Default()
	}

	var removed int
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, encoder.PartialSuffix) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove orphaned partial file",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				return nil
			}
			removed++
			logger.Info("removed orphaned partial file", slog.String("path", path))
			return nil
		})
	}
	return removed
}
