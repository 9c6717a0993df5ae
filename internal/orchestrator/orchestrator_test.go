package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bybrooklyn/alchemist/internal/config"
	"github.com/bybrooklyn/alchemist/internal/encoder"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// fakeProber returns canned probe results.
type fakeProber struct {
	result *ffmpeg.ProbeResult
	err    error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeRunner scripts encode behavior.
type fakeRunner struct {
	encodeResult *encoder.Result
	encodeErr    error
	verifyResult *encoder.Result
	verifyErr    error

	// blockUntilCancel makes Encode report progress then wait for ctx.
	blockUntilCancel bool
	progressAt       float64

	cleanupCalls int
}

func (f *fakeRunner) Encode(ctx context.Context, req encoder.Request) (*encoder.Result, error) {
	if f.blockUntilCancel {
		if req.OnProgress != nil {
			req.OnProgress(f.progressAt)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.encodeErr != nil {
		return f.encodeResult, f.encodeErr
	}
	if req.OnProgress != nil {
		req.OnProgress(50)
		req.OnProgress(100)
	}
	return f.encodeResult, nil
}

func (f *fakeRunner) VerifyAndCommit(ctx context.Context, req encoder.Request, result *encoder.Result) (*encoder.Result, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyResult, nil
}

func (f *fakeRunner) Cleanup(outputPath string) {
	f.cleanupCalls++
}

// probe1080p returns a probe for an encodeable H.264 source.
func probe1080p() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Format: ffmpeg.ProbeFormat{
			FormatName: "matroska,webm",
			Duration:   "3600",
			Size:       "5368709120",
			BitRate:    "11930464",
		},
		Streams: []ffmpeg.ProbeStream{
			{
				Index:        0,
				CodecType:    "video",
				CodecName:    "h264",
				PixFmt:       "yuv420p",
				Width:        1920,
				Height:       1080,
				BitRate:      "10368000", // 0.2 bpp at 25 fps
				AvgFrameRate: "25/1",
			},
			{Index: 1, CodecType: "audio", CodecName: "ac3", Channels: 6},
		},
	}
}

// testHarness bundles the orchestrator with real repositories on sqlite.
type testHarness struct {
	orch      *Orchestrator
	jobs      repository.JobRepository
	decisions repository.DecisionRepository
	stats     repository.EncodeStatsRepository
	bus       *events.Bus
	snap      settings.Snapshot
}

func newHarness(t *testing.T, prober Prober, runner EncodeRunner) *testHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Job{}, &models.Decision{}, &models.EncodeStats{}, &models.LogEntry{},
	))

	jobs := repository.NewJobRepository(db)
	decisions := repository.NewDecisionRepository(db)
	stats := repository.NewEncodeStatsRepository(db)
	logs := repository.NewLogRepository(db)
	bus := events.NewBus(1024)

	orch := New(jobs, decisions, stats, logs, prober, runner, bus, nil, nil)

	snap := settings.Snapshot{
		Transcode: config.TranscodeConfig{
			OutputCodec:            config.CodecAV1,
			QualityProfile:         config.ProfileBalanced,
			SizeReductionThreshold: 0.3,
			MinBppThreshold:        0.10,
			MinFileSizeMB:          50,
			ConcurrentJobs:         1,
		},
	}

	return &testHarness{orch: orch, jobs: jobs, decisions: decisions, stats: stats, bus: bus, snap: snap}
}

// claimJob inserts and claims one job.
func (h *testHarness) claimJob(t *testing.T, path string) *models.Job {
	t.Helper()
	ctx := context.Background()
	_, _, err := h.jobs.Insert(ctx, path, path+".av1.mkv", "H", 0)
	require.NoError(t, err)
	claimed, err := h.jobs.ClaimNextEligible(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	return claimed[0]
}

func TestProcessSkipSmallFile(t *testing.T) {
	probe := probe1080p()
	probe.Format.Size = "10485760" // 10 MB < 50 MB floor

	runner := &fakeRunner{}
	h := newHarness(t, &fakeProber{result: probe}, runner)
	job := h.claimJob(t, "/m/a.mp4")

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	h.orch.Process(context.Background(), job, h.snap)

	fresh, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSkipped, fresh.Status)
	assert.Equal(t, 0.0, fresh.Progress)
	assert.Equal(t, 1, fresh.AttemptCount)

	decisions, err := h.decisions.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.DecisionSkip, decisions[0].Action)
	assert.Contains(t, decisions[0].Reason, "file too small")

	// The encoder was never invoked.
	assert.Equal(t, 0, runner.cleanupCalls)
}

func TestProcessEncodeAndCommit(t *testing.T) {
	committed := &encoder.Result{
		Outcome:         encoder.OutcomeCommitted,
		Encoder:         ffmpeg.Av1Svt,
		InputSizeBytes:  5_000_000_000,
		OutputSizeBytes: 2_000_000_000,
		EncodeTime:      90 * time.Minute,
	}
	runner := &fakeRunner{encodeResult: committed, verifyResult: committed}
	h := newHarness(t, &fakeProber{result: probe1080p()}, runner)
	job := h.claimJob(t, "/m/b.mkv")

	h.orch.Process(context.Background(), job, h.snap)

	ctx := context.Background()
	fresh, err := h.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, fresh.Status)
	assert.Equal(t, 100.0, fresh.Progress)

	stats, err := h.stats.GetByJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.EqualValues(t, 2_000_000_000, stats.OutputSizeBytes)
	assert.InDelta(t, 2.5, stats.CompressionRatio, 0.001)
	// 90000 frames over 5400s.
	assert.InDelta(t, 90000.0/5400.0, stats.EncodeSpeed, 0.001)

	latest, err := h.decisions.Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionEncode, latest.Action)
}

func TestProcessRevertOnInsufficientSavings(t *testing.T) {
	reverted := &encoder.Result{
		Outcome:         encoder.OutcomeRevertedSize,
		Encoder:         ffmpeg.Av1Svt,
		InputSizeBytes:  5_000_000_000,
		OutputSizeBytes: 4_000_000_000,
		RevertReason:    "insufficient size reduction: 20%<30%",
	}
	runner := &fakeRunner{
		encodeResult: &encoder.Result{InputSizeBytes: 5_000_000_000, OutputSizeBytes: 4_000_000_000},
		verifyResult: reverted,
	}
	h := newHarness(t, &fakeProber{result: probe1080p()}, runner)
	job := h.claimJob(t, "/m/b.mkv")

	h.orch.Process(context.Background(), job, h.snap)

	ctx := context.Background()
	fresh, err := h.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusReverted, fresh.Status)
	assert.Equal(t, 0.0, fresh.Progress)

	latest, err := h.decisions.Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRevert, latest.Action)
	assert.Contains(t, latest.Reason, "20%<30%")

	// No stats row for a reverted run.
	stats, err := h.stats.GetByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestProcessCancelMidEncode(t *testing.T) {
	runner := &fakeRunner{blockUntilCancel: true, progressAt: 42.7}
	h := newHarness(t, &fakeProber{result: probe1080p()}, runner)
	job := h.claimJob(t, "/m/b.mkv")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.orch.Process(ctx, job, h.snap)
		close(done)
	}()

	// Wait for the encode phase to report progress, then cancel.
	require.Eventually(t, func() bool {
		fresh, err := h.jobs.GetByID(context.Background(), job.ID)
		return err == nil && fresh.Progress == 42.7
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not finish after cancel")
	}

	fresh, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, fresh.Status)
	assert.Equal(t, 42.7, fresh.Progress, "progress unchanged by cancellation")
	assert.Equal(t, 1, runner.cleanupCalls, "partial output removed")
}

func TestProcessProbeFailure(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, &fakeProber{err: errors.New("ffprobe failed: invalid data")}, runner)
	job := h.claimJob(t, "/m/bad.mkv")

	h.orch.Process(context.Background(), job, h.snap)

	ctx := context.Background()
	fresh, err := h.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, fresh.Status)

	latest, err := h.decisions.Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionFail, latest.Action)
	assert.Contains(t, latest.Reason, "probe failed")
}

func TestProcessEncoderCrash(t *testing.T) {
	runner := &fakeRunner{
		encodeErr:    errors.New("encoder crashed: exit status 1"),
		encodeResult: &encoder.Result{StderrTail: "Error while opening encoder"},
	}
	h := newHarness(t, &fakeProber{result: probe1080p()}, runner)
	job := h.claimJob(t, "/m/b.mkv")

	h.orch.Process(context.Background(), job, h.snap)

	ctx := context.Background()
	fresh, err := h.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, fresh.Status)
	assert.Equal(t, 1, runner.cleanupCalls)

	latest, err := h.decisions.Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionFail, latest.Action)
	assert.Contains(t, latest.Reason, "Error while opening encoder")
}

func TestProcessStatusPathEvents(t *testing.T) {
	committed := &encoder.Result{
		Outcome:         encoder.OutcomeCommitted,
		InputSizeBytes:  5_000_000_000,
		OutputSizeBytes: 2_000_000_000,
		EncodeTime:      time.Hour,
	}
	runner := &fakeRunner{encodeResult: committed, verifyResult: committed}
	h := newHarness(t, &fakeProber{result: probe1080p()}, runner)
	job := h.claimJob(t, "/m/b.mkv")

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	h.orch.Process(context.Background(), job, h.snap)

	var statuses []models.JobStatus
	timeout := time.After(time.Second)
collect:
	for {
		select {
		case event := <-sub.Events():
			if event.Type == events.TypeStatus {
				statuses = append(statuses, event.Status)
			}
			if event.Type == events.TypeStatus && event.Status == models.JobStatusCompleted {
				break collect
			}
		case <-timeout:
			break collect
		}
	}

	assert.Equal(t, []models.JobStatus{
		models.JobStatusAnalyzing,
		models.JobStatusEncoding,
		models.JobStatusVerifying,
		models.JobStatusCompleted,
	}, statuses)
}
