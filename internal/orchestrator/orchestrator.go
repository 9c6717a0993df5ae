// Package orchestrator drives one claimed job through the pipeline:
// analyze, decide, encode, verify, commit or revert, persisting every
// transition and emitting events for the dashboard.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bybrooklyn/alchemist/internal/analyzer"
	"github.com/bybrooklyn/alchemist/internal/encoder"
	"github.com/bybrooklyn/alchemist/internal/events"
	"github.com/bybrooklyn/alchemist/internal/ffmpeg"
	"github.com/bybrooklyn/alchemist/internal/models"
	"github.com/bybrooklyn/alchemist/internal/repository"
	"github.com/bybrooklyn/alchemist/internal/settings"
)

// Prober probes media files. Satisfied by *ffmpeg.Prober; tests fake it.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// EncodeRunner executes encode runs. Satisfied by *encoder.Runner.
type EncodeRunner interface {
	Encode(ctx context.Context, req encoder.Request) (*encoder.Result, error)
	VerifyAndCommit(ctx context.Context, req encoder.Request, result *encoder.Result) (*encoder.Result, error)
	Cleanup(outputPath string)
}

// Notifier delivers job lifecycle notifications. Failures are logged by the
// implementation and never affect the pipeline.
type Notifier interface {
	NotifyJob(ctx context.Context, event models.NotificationEvent, job *models.Job, detail string)
}

// Orchestrator owns a job from claim to terminal status. All state
// transitions for a job are serialized through its Process call.
type Orchestrator struct {
	jobs      repository.JobRepository
	decisions repository.DecisionRepository
	stats     repository.EncodeStatsRepository
	logs      repository.LogRepository
	prober    Prober
	runner    EncodeRunner
	bus       *events.Bus
	notifier  Notifier
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(
	jobs repository.JobRepository,
	decisions repository.DecisionRepository,
	stats repository.EncodeStatsRepository,
	logs repository.LogRepository,
	prober Prober,
	runner EncodeRunner,
	bus *events.Bus,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:      jobs,
		decisions: decisions,
		stats:     stats,
		logs:      logs,
		prober:    prober,
		runner:    runner,
		bus:       bus,
		notifier:  notifier,
		logger:    logger,
	}
}

// Process runs one attempt for a claimed job. It always leaves the job in a
// terminal status (or queued again via a later restart). There is no
// automatic retry: failed is sticky until the user restarts.
func (o *Orchestrator) Process(ctx context.Context, job *models.Job, snap settings.Snapshot) {
	log := o.logger.With(slog.String("job_id", job.ID.String()), slog.String("input", job.InputPath))

	// Persistence uses a background-derived context so terminal transitions
	// land even when the job context is cancelled.
	store := context.WithoutCancel(ctx)

	if err := o.jobs.IncrementAttempt(store, job.ID); err != nil {
		log.Error("incrementing attempt count", slog.String("error", err.Error()))
	}

	if o.cancelled(ctx, store, job, models.JobStatusClaimed, log) {
		return
	}

	if err := o.transition(store, job, models.JobStatusClaimed, models.JobStatusAnalyzing); err != nil {
		log.Error("transition to analyzing", slog.String("error", err.Error()))
		return
	}

	// Phase 1: probe.
	probe, err := o.prober.Probe(ctx, job.InputPath)
	if err != nil {
		if o.cancelled(ctx, store, job, models.JobStatusAnalyzing, log) {
			return
		}
		o.fail(store, job, models.JobStatusAnalyzing, "probe failed: "+err.Error(), log)
		return
	}

	analysis, err := analyzer.FromProbe(job.InputPath, probe)
	if err != nil {
		o.fail(store, job, models.JobStatusAnalyzing, "probe failed: "+err.Error(), log)
		return
	}
	meta := &analysis.Metadata

	log.Info("analysis complete",
		slog.String("codec", meta.CodecName),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
		slog.Float64("duration_secs", meta.DurationSecs),
		slog.String("confidence", string(analysis.Confidence)),
	)

	if o.cancelled(ctx, store, job, models.JobStatusAnalyzing, log) {
		return
	}

	// Phase 2: decide.
	decision := analyzer.Decide(meta, snap.Transcode)
	if decision.Action == analyzer.ActionSkip {
		o.recordDecision(store, job, models.DecisionSkip, decision.Reason, log)
		if err := o.transition(store, job, models.JobStatusAnalyzing, models.JobStatusSkipped); err != nil {
			log.Error("transition to skipped", slog.String("error", err.Error()))
		}
		log.Info("job skipped", slog.String("reason", decision.Reason))
		return
	}

	o.recordDecision(store, job, models.DecisionEncode, decision.Reason, log)
	if err := o.transition(store, job, models.JobStatusAnalyzing, models.JobStatusEncoding); err != nil {
		log.Error("transition to encoding", slog.String("error", err.Error()))
		return
	}

	// Phase 3: encode.
	req := encoder.Request{
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		Meta:       meta,
		Snapshot:   snap,
		OnProgress: func(pct float64) {
			if err := o.jobs.MarkProgress(store, job.ID, pct); err != nil {
				log.Debug("marking progress", slog.String("error", err.Error()))
			}
			o.bus.PublishProgress(job.ID, pct)
		},
	}

	result, err := o.runner.Encode(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			o.runner.Cleanup(job.OutputPath)
			o.markCancelled(store, job, models.JobStatusEncoding, log)
			return
		}

		reason := err.Error()
		if result != nil && result.StderrTail != "" {
			reason = reason + "\n" + result.StderrTail
		}
		o.runner.Cleanup(job.OutputPath)
		o.fail(store, job, models.JobStatusEncoding, reason, log)
		return
	}

	// Phase 4: verify + commit/revert.
	if err := o.transition(store, job, models.JobStatusEncoding, models.JobStatusVerifying); err != nil {
		log.Error("transition to verifying", slog.String("error", err.Error()))
		o.runner.Cleanup(job.OutputPath)
		return
	}

	if o.cancelled(ctx, store, job, models.JobStatusVerifying, log) {
		o.runner.Cleanup(job.OutputPath)
		return
	}

	result, err = o.runner.VerifyAndCommit(ctx, req, result)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			o.runner.Cleanup(job.OutputPath)
			o.markCancelled(store, job, models.JobStatusVerifying, log)
			return
		}
		o.runner.Cleanup(job.OutputPath)
		o.fail(store, job, models.JobStatusVerifying, err.Error(), log)
		return
	}

	switch result.Outcome {
	case encoder.OutcomeRevertedSize, encoder.OutcomeRevertedQuality:
		o.recordDecision(store, job, models.DecisionRevert, result.RevertReason, log)
		if err := o.transition(store, job, models.JobStatusVerifying, models.JobStatusReverted); err != nil {
			log.Error("transition to reverted", slog.String("error", err.Error()))
		}
		log.Info("job reverted", slog.String("reason", result.RevertReason))

	case encoder.OutcomeCommitted:
		o.commit(store, job, meta, result, log)
	}
}

// commit persists encode stats and completes the job.
func (o *Orchestrator) commit(store context.Context, job *models.Job, meta *analyzer.Metadata, result *encoder.Result, log *slog.Logger) {
	stats := buildStats(job.ID, meta, result)
	if err := o.stats.Record(store, stats); err != nil {
		log.Error("recording encode stats", slog.String("error", err.Error()))
	}

	if err := o.transition(store, job, models.JobStatusVerifying, models.JobStatusCompleted); err != nil {
		log.Error("transition to completed", slog.String("error", err.Error()))
		return
	}

	log.Info("job completed",
		slog.Int64("input_bytes", result.InputSizeBytes),
		slog.Int64("output_bytes", result.OutputSizeBytes),
		slog.Float64("compression_ratio", stats.CompressionRatio),
	)

	if o.notifier != nil {
		o.notifier.NotifyJob(store, models.NotifyOnCompleted, job, result.RevertReason)
	}
}

// buildStats derives the EncodeStats row from the run result.
func buildStats(jobID models.ULID, meta *analyzer.Metadata, result *encoder.Result) *models.EncodeStats {
	stats := &models.EncodeStats{
		JobID:           jobID,
		InputSizeBytes:  result.InputSizeBytes,
		OutputSizeBytes: result.OutputSizeBytes,
		VmafScore:       result.VmafScore,
	}

	if result.OutputSizeBytes > 0 {
		stats.CompressionRatio = float64(result.InputSizeBytes) / float64(result.OutputSizeBytes)
	}

	encodeSecs := result.EncodeTime.Seconds()
	stats.EncodeTimeSeconds = encodeSecs

	if encodeSecs > 0 && meta.Fps > 0 && meta.DurationSecs > 0 {
		totalFrames := meta.Fps * meta.DurationSecs
		stats.EncodeSpeed = totalFrames / encodeSecs
	}

	// Output duration matches the source; video is re-encoded, not cut.
	if meta.DurationSecs > 0 {
		stats.AvgBitrateKbps = float64(result.OutputSizeBytes) * 8 / meta.DurationSecs / 1000
	}

	return stats
}

// transition persists a state change and broadcasts it.
func (o *Orchestrator) transition(store context.Context, job *models.Job, from, to models.JobStatus) error {
	if err := o.jobs.Transition(store, job.ID, from, to); err != nil {
		return err
	}
	job.Status = to
	o.bus.PublishStatus(job.ID, to)
	return nil
}

// recordDecision appends an audit decision and broadcasts it.
func (o *Orchestrator) recordDecision(store context.Context, job *models.Job, action models.DecisionAction, reason string, log *slog.Logger) {
	if _, err := o.decisions.Record(store, job.ID, action, reason); err != nil {
		log.Error("recording decision", slog.String("error", err.Error()))
	}
	o.bus.PublishDecision(job.ID, string(action), reason)
}

// fail records the failure decision, logs it, and moves the job to failed.
func (o *Orchestrator) fail(store context.Context, job *models.Job, from models.JobStatus, reason string, log *slog.Logger) {
	log.Error("job failed", slog.String("reason", reason))

	o.recordDecision(store, job, models.DecisionFail, reason, log)
	jobID := job.ID
	if err := o.logs.Record(store, "error", &jobID, reason); err != nil {
		log.Debug("recording failure log", slog.String("error", err.Error()))
	}

	if err := o.transition(store, job, from, models.JobStatusFailed); err != nil {
		log.Error("transition to failed", slog.String("error", err.Error()))
	}

	if o.notifier != nil {
		o.notifier.NotifyJob(store, models.NotifyOnFailed, job, reason)
	}
}

// cancelled checks the job context at a suspension point and, when fired,
// transitions the job to cancelled. Cancellation is never logged as error.
func (o *Orchestrator) cancelled(ctx, store context.Context, job *models.Job, from models.JobStatus, log *slog.Logger) bool {
	select {
	case <-ctx.Done():
	default:
		return false
	}
	o.markCancelled(store, job, from, log)
	return true
}

// markCancelled moves the job to cancelled, preserving its progress.
func (o *Orchestrator) markCancelled(store context.Context, job *models.Job, from models.JobStatus, log *slog.Logger) {
	if err := o.transition(store, job, from, models.JobStatusCancelled); err != nil {
		log.Error("transition to cancelled", slog.String("error", err.Error()))
		return
	}
	log.Info("job cancelled")
}
