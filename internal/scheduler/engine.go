// Package scheduler claims eligible jobs and runs them on a bounded pool,
// honoring pause state and active-hours windows.
package scheduler

import (
	"context"
	"sync"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// flight tracks one in-flight job.
type flight struct {
	inputPath string
	cancel    context.CancelFunc
}

// Engine is the single owned value holding process-wide engine state:
// the pause flag and the in-flight job registry. Reads are snapshots;
// writes go through its methods. There are no ambient singletons.
type Engine struct {
	mu       sync.Mutex
	paused   bool
	inFlight map[models.ULID]*flight
}

// NewEngine creates an engine state value.
func NewEngine() *Engine {
	return &Engine{
		inFlight: make(map[models.ULID]*flight),
	}
}

// Pause stops the claim loop from taking new work. In-flight jobs continue.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume re-enables claiming.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
}

// IsPaused reports the pause flag.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Register records an in-flight job with its cancel function.
func (e *Engine) Register(jobID models.ULID, inputPath string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight[jobID] = &flight{inputPath: inputPath, cancel: cancel}
}

// Unregister removes a finished job.
func (e *Engine) Unregister(jobID models.ULID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, jobID)
}

// Cancel fires the cancel function for an in-flight job. Returns false when
// the job is not in flight in this process.
func (e *Engine) Cancel(jobID models.ULID) bool {
	e.mu.Lock()
	f, ok := e.inFlight[jobID]
	e.mu.Unlock()

	if !ok {
		return false
	}
	f.cancel()
	return true
}

// CancelAll fires every in-flight cancel function.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	flights := make([]*flight, 0, len(e.inFlight))
	for _, f := range e.inFlight {
		flights = append(flights, f)
	}
	e.mu.Unlock()

	for _, f := range flights {
		f.cancel()
	}
}

// ActiveCount returns the number of in-flight jobs.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

// InFlightPaths returns the input paths currently owned by orchestrators.
// Used to exclude them from claiming.
func (e *Engine) InFlightPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	paths := make([]string, 0, len(e.inFlight))
	for _, f := range e.inFlight {
		paths = append(paths, f.inputPath)
	}
	return paths
}
