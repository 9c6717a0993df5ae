package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage for a running encoder child.
type ProcessStats struct {
	PID            int32     `json:"pid"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ProcessMonitor samples CPU and memory usage of an encoder child process
// via gopsutil. Sampling stops automatically when the process exits.
type ProcessMonitor struct {
	pid      int32
	interval time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int32, interval time.Duration) *ProcessMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProcessMonitor{
		pid:      pid,
		interval: interval,
		stats: ProcessStats{
			PID:       pid,
			StartedAt: time.Now(),
		},
	}
}

// Start begins sampling until Stop is called or the process exits.
func (m *ProcessMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		proc, err := process.NewProcessWithContext(ctx, m.pid)
		if err != nil {
			return
		}

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				running, err := proc.IsRunningWithContext(ctx)
				if err != nil || !running {
					return
				}

				var stats ProcessStats
				stats.PID = m.pid
				stats.LastUpdated = time.Now()

				if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
					stats.CPUPercent = pct
				}
				if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
					stats.MemoryRSSBytes = mem.RSS
				}

				m.mu.Lock()
				stats.StartedAt = m.stats.StartedAt
				m.stats = stats
				m.mu.Unlock()
			}
		}
	}()
}

// Stop halts sampling.
func (m *ProcessMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Stats returns the latest sample.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
