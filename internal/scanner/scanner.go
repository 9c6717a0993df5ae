// Package scanner walks watched directories and enqueues eligible media
// files. The watcher uses the same eligibility rules for its events.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// Status reports the progress of a running or finished scan.
type Status struct {
	IsRunning     bool   `json:"is_running"`
	FilesFound    int    `json:"files_found"`
	FilesAdded    int    `json:"files_added"`
	CurrentFolder string `json:"current_folder,omitempty"`
}

// Scanner performs full library scans over the enabled watch directories.
type Scanner struct {
	jobs     repository.JobRepository
	dirs     repository.WatchDirRepository
	settings *settings.Service
	bus      *events.Bus
	logger   *slog.Logger

	mu      sync.Mutex
	status  Status
	running bool
}

// NewScanner creates a scanner.
func NewScanner(
	jobs repository.JobRepository,
	dirs repository.WatchDirRepository,
	settingsSvc *settings.Service,
	bus *events.Bus,
	logger *slog.Logger,
) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		jobs:     jobs,
		dirs:     dirs,
		settings: settingsSvc,
		bus:      bus,
		logger:   logger,
	}
}

// Status returns the current scan status.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start begins a full scan in the background. A scan already in progress is
// left alone.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.status = Status{IsRunning: true}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.status.IsRunning = false
			s.status.CurrentFolder = ""
			s.mu.Unlock()
		}()
		s.run(ctx)
	}()

	return nil
}

// run walks every enabled watch directory once.
func (s *Scanner) run(ctx context.Context) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		s.logger.Error("scan: loading settings", slog.String("error", err.Error()))
		return
	}

	dirs, err := s.dirs.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("scan: loading watch dirs", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("library scan started", slog.Int("dirs", len(dirs)))

	for _, dir := range dirs {
		if ctx.Err() != nil {
			return
		}
		found, added := s.ScanRoot(ctx, dir, snap)
		s.logger.Info("scanned directory",
			slog.String("path", dir.Path),
			slog.Int("found", found),
			slog.Int("added", added),
		)
	}

	status := s.Status()
	s.logger.Info("library scan finished",
		slog.Int("files_found", status.FilesFound),
		slog.Int("files_added", status.FilesAdded),
	)
}

// ScanRoot walks one watch directory, enqueuing eligible files. Returns how
// many files were seen and how many enqueues changed state.
func (s *Scanner) ScanRoot(ctx context.Context, dir *models.WatchDir, snap settings.Snapshot) (int, int) {
	extensions := dir.ExtensionList()
	if extensions == nil {
		extensions = normalizeExtensions(snap.Scanner.Extensions)
	}

	var found, added int

	walkErr := filepath.WalkDir(dir.Path, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Debug("scan: skipping unreadable entry", slog.String("path", path))
			return nil
		}

		if d.IsDir() {
			if path != dir.Path && !dir.Recursive {
				return filepath.SkipDir
			}
			s.mu.Lock()
			s.status.CurrentFolder = path
			s.mu.Unlock()
			return nil
		}

		if !Eligible(path, extensions, snap.Scanner.ExcludePatterns) {
			return nil
		}

		found++
		s.mu.Lock()
		s.status.FilesFound++
		s.mu.Unlock()

		if s.enqueue(ctx, path, snap) {
			added++
			s.mu.Lock()
			s.status.FilesAdded++
			s.mu.Unlock()
		}
		return nil
	})
	if walkErr != nil && ctx.Err() == nil {
		s.logger.Warn("scan: walk aborted",
			slog.String("path", dir.Path),
			slog.String("error", walkErr.Error()),
		)
	}

	return found, added
}

// enqueue inserts one file idempotently. Returns true when the insert
// created or re-queued a row. The queued event is published only after the
// row is committed, so subscribers never observe an unknown job id.
func (s *Scanner) enqueue(ctx context.Context, path string, snap settings.Snapshot) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	hash := models.FingerprintFile(info.ModTime(), info.Size())
	outputPath := OutputPathFor(path, snap.Files)

	job, changed, err := s.jobs.Insert(ctx, path, outputPath, hash, 0)
	if err != nil {
		s.logger.Error("enqueue failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false
	}
	if changed {
		s.bus.PublishStatus(job.ID, models.JobStatusQueued)
	}
	return changed
}

// Eligible applies the extension allowlist and exclude-pattern rules to a
// candidate path. Patterns match as case-insensitive substrings.
func Eligible(path string, extensions []string, excludePatterns []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}

	matched := false
	for _, allowed := range extensions {
		if ext == allowed {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	lower := strings.ToLower(path)
	for _, pattern := range excludePatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}

// OutputPathFor derives the output path beside the input:
// <input-stem><suffix>.<extension>.
func OutputPathFor(inputPath string, files config.FilesConfig) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf("%s%s.%s", stem, files.OutputSuffix, files.OutputExtension))
}

// normalizeExtensions lowercases and strips leading dots.
func normalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(e, ".")))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
