// Package watcher monitors watch directories for new or changed media
// files and enqueues them idempotently. Events are debounced per path so
// files still being written are enqueued only once stable, and the OS
// event source is never blocked: on internal overflow the affected root
// degrades to a periodic rescan.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/scanner"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

const (
	// defaultQuietWindow is how long a path must stay quiet before its
	// pending event fires.
	defaultQuietWindow = 2 * time.Second

	// eventBufferSize bounds the internal event channel. The fsnotify
	// callback side never blocks on it.
	eventBufferSize = 1024

	// dirtyRescanInterval is how often overflowed roots are rescanned.
	dirtyRescanInterval = 5 * time.Minute
)

// Watcher monitors enabled watch directories.
type Watcher struct {
	jobs     repository.JobRepository
	dirs     repository.WatchDirRepository
	settings *settings.Service
	scan     *scanner.Scanner
	bus      *events.Bus
	logger   *slog.Logger

	quietWindow time.Duration

	mu         sync.Mutex
	fsw        *fsnotify.Watcher
	roots      map[string]*models.WatchDir // watched root -> config
	pending    map[string]time.Time        // path -> deadline
	dirtyRoots map[string]bool

	eventCh chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher.
func New(
	jobs repository.JobRepository,
	dirs repository.WatchDirRepository,
	settingsSvc *settings.Service,
	scan *scanner.Scanner,
	bus *events.Bus,
	logger *slog.Logger,
) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		jobs:        jobs,
		dirs:        dirs,
		settings:    settingsSvc,
		scan:        scan,
		bus:         bus,
		logger:      logger,
		quietWindow: defaultQuietWindow,
		roots:       make(map[string]*models.WatchDir),
		pending:     make(map[string]time.Time),
		dirtyRoots:  make(map[string]bool),
		eventCh:     make(chan string, eventBufferSize),
	}
}

// WithQuietWindow overrides the debounce window.
func (w *Watcher) WithQuietWindow(d time.Duration) *Watcher {
	if d > 0 {
		w.quietWindow = d
	}
	return w
}

// Start registers the enabled watch directories and begins processing
// events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	dirs, err := w.dirs.GetEnabled(w.ctx)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("loading watch dirs: %w", err)
	}
	for _, dir := range dirs {
		w.addRoot(dir)
	}

	w.wg.Add(3)
	go w.readLoop()
	go w.debounceLoop()
	go w.dirtyRescanLoop()

	w.logger.Info("file watcher started", slog.Int("dirs", len(dirs)))
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	fsw := w.fsw
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fsw != nil {
		fsw.Close()
	}
	w.wg.Wait()
}

// Refresh re-reads the watch-dir table and registers new roots. Called
// after API edits.
func (w *Watcher) Refresh(ctx context.Context) error {
	dirs, err := w.dirs.GetEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading watch dirs: %w", err)
	}

	known := make(map[string]bool)
	for _, dir := range dirs {
		known[dir.Path] = true
		w.mu.Lock()
		_, exists := w.roots[dir.Path]
		w.mu.Unlock()
		if !exists {
			w.addRoot(dir)
		}
	}

	// Deregister removed roots.
	w.mu.Lock()
	for path := range w.roots {
		if !known[path] {
			delete(w.roots, path)
			if w.fsw != nil {
				_ = w.fsw.Remove(path)
			}
		}
	}
	w.mu.Unlock()

	return nil
}

// addRoot watches a directory tree (recursively when configured).
func (w *Watcher) addRoot(dir *models.WatchDir) {
	w.mu.Lock()
	w.roots[dir.Path] = dir
	fsw := w.fsw
	w.mu.Unlock()

	if fsw == nil {
		return
	}

	if err := fsw.Add(dir.Path); err != nil {
		w.logger.Warn("failed to watch directory",
			slog.String("path", dir.Path),
			slog.String("error", err.Error()),
		)
		return
	}

	if !dir.Recursive {
		return
	}

	_ = filepath.WalkDir(dir.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == dir.Path {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Debug("failed to watch subdirectory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
}

// readLoop drains fsnotify events onto the bounded internal channel.
// It must never block: when the channel is full the affected root is
// marked dirty and picked up by the periodic rescan instead.
func (w *Watcher) readLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleFsEvent routes one fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// New directories under a recursive root get their own watch.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if root := w.rootFor(event.Name); root != nil && root.Recursive && event.Op&fsnotify.Create != 0 {
			w.mu.Lock()
			fsw := w.fsw
			w.mu.Unlock()
			if fsw != nil {
				_ = fsw.Add(event.Name)
			}
		}
		return
	}

	select {
	case w.eventCh <- event.Name:
	default:
		// Overflow: degrade this root to a periodic rescan.
		if root := w.rootFor(event.Name); root != nil {
			w.mu.Lock()
			w.dirtyRoots[root.Path] = true
			w.mu.Unlock()
		}
	}
}

// rootFor finds the configured root containing a path.
func (w *Watcher) rootFor(path string) *models.WatchDir {
	w.mu.Lock()
	defer w.mu.Unlock()

	for rootPath, dir := range w.roots {
		if path == rootPath || strings.HasPrefix(path, rootPath+string(filepath.Separator)) {
			return dir
		}
	}
	return nil
}

// debounceLoop coalesces events per path until the quiet window elapses.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.quietWindow / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case path := <-w.eventCh:
			w.mu.Lock()
			w.pending[path] = time.Now().Add(w.quietWindow)
			w.mu.Unlock()
		case <-ticker.C:
			w.flushQuiet()
		}
	}
}

// flushQuiet enqueues every pending path whose quiet window has elapsed.
func (w *Watcher) flushQuiet() {
	now := time.Now()

	w.mu.Lock()
	var due []string
	for path, deadline := range w.pending {
		if now.After(deadline) {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(due) == 0 {
		return
	}

	snap := w.settings.Cached()
	for _, path := range due {
		w.enqueue(path, snap)
	}
}

// enqueue filters and inserts one settled file. The queued event publishes
// only after the row is committed.
func (w *Watcher) enqueue(path string, snap settings.Snapshot) {
	root := w.rootFor(path)
	if root == nil {
		return
	}

	extensions := root.ExtensionList()
	if extensions == nil {
		extensions = normalizeExtensions(snap.Scanner.Extensions)
	}
	if !scanner.Eligible(path, extensions, snap.Scanner.ExcludePatterns) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	hash := models.FingerprintFile(info.ModTime(), info.Size())
	outputPath := scanner.OutputPathFor(path, snap.Files)

	job, changed, err := w.jobs.Insert(w.ctx, path, outputPath, hash, 0)
	if err != nil {
		w.logger.Error("watcher enqueue failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	if changed {
		w.logger.Info("file enqueued", slog.String("path", path))
		w.bus.PublishStatus(job.ID, models.JobStatusQueued)
	}
}

// dirtyRescanLoop periodically rescans roots that overflowed the event
// channel.
func (w *Watcher) dirtyRescanLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(dirtyRescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.rescanDirty()
		}
	}
}

// rescanDirty walks each dirty root once and clears its flag.
func (w *Watcher) rescanDirty() {
	w.mu.Lock()
	var dirty []*models.WatchDir
	for path := range w.dirtyRoots {
		if dir, ok := w.roots[path]; ok {
			dirty = append(dirty, dir)
		}
		delete(w.dirtyRoots, path)
	}
	w.mu.Unlock()

	if len(dirty) == 0 {
		return
	}

	snap, err := w.settings.Snapshot(w.ctx)
	if err != nil {
		w.logger.Error("dirty rescan: loading settings", slog.String("error", err.Error()))
		return
	}

	for _, dir := range dirty {
		w.logger.Info("rescanning overflowed root", slog.String("path", dir.Path))
		w.scan.ScanRoot(w.ctx, dir, snap)
	}
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
