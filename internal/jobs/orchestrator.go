package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"media-converter/internal/domain"
	"media-converter/internal/engine"
	"media-converter/internal/metrics"
	"media-converter/internal/transcode"
)

// HandleProvider hands out the shared engine handle.
type HandleProvider interface {
	Acquire(ctx context.Context) (engine.Handle, error)
}

// RunSummary reports how one pass over the job list ended.
type RunSummary struct {
	Total   int           `json:"total"`
	Done    int           `json:"done"`
	Failed  int           `json:"failed"`
	Pending int           `json:"pending"`
	Elapsed time.Duration `json:"elapsed"`
}

// Orchestrator drives the pending jobs of a Manager through the engine,
// one at a time.
type Orchestrator struct {
	engines HandleProvider
	jobs    *Manager
	log     *zap.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer

	running atomic.Bool
}

// NewOrchestrator wires an orchestrator. log and rec may be nil.
func NewOrchestrator(engines HandleProvider, jobs *Manager, log *zap.Logger, rec *metrics.Recorder) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		engines: engines,
		jobs:    jobs,
		log:     log,
		metrics: rec,
		tracer:  otel.Tracer("media-converter/jobs"),
	}
}

// Running reports whether a batch is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run converts every pending job in selection order using a copy of opts.
// A failing job is marked as errored and the batch moves on; only engine
// initialization failure or cancellation of ctx end the run early.
func (o *Orchestrator) Run(ctx context.Context, opts domain.Options) (RunSummary, error) {
	if err := opts.Validate(); err != nil {
		return RunSummary{}, fmt.Errorf("invalid options: %w", err)
	}
	if !o.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrRunInProgress
	}
	defer o.running.Store(false)

	snapshot := opts
	ids := o.jobs.PendingIDs()
	summary := RunSummary{Total: len(ids), Pending: len(ids)}
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.Int("batch.size", len(ids)),
		attribute.String("batch.format", string(snapshot.Format)),
	))
	defer span.End()

	log := o.log.With(zap.Int("jobs", len(ids)), zap.String("format", string(snapshot.Format)))
	log.Info("batch started")
	o.jobs.Events().Publish(Event{Type: EventTypeRun, Message: fmt.Sprintf("Converting %d file(s)", len(ids))})

	handle, err := o.engines.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine unavailable")
		log.Error("batch aborted: engine unavailable", zap.Error(err))
		o.jobs.Events().Publish(Event{Type: EventTypeError, Message: "The transcoding engine could not be loaded"})
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			log.Warn("batch interrupted", zap.Int("remaining", summary.Pending))
			o.jobs.Events().Publish(Event{Type: EventTypeRun, Message: "Batch cancelled"})
			return summary, err
		}

		switch o.process(ctx, handle, id, snapshot) {
		case domain.JobStatusDone:
			summary.Done++
			summary.Pending--
		case domain.JobStatusError:
			summary.Failed++
			summary.Pending--
		}
	}

	summary.Elapsed = time.Since(start)
	log.Info("batch finished",
		zap.Int("done", summary.Done),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	o.jobs.Events().Publish(Event{
		Type:    EventTypeRun,
		Message: fmt.Sprintf("Batch finished: %d converted, %d failed", summary.Done, summary.Failed),
	})

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// process runs one job to a terminal state and always clears its
// workspace entries before returning.
func (o *Orchestrator) process(ctx context.Context, h engine.Handle, id string, opts domain.Options) domain.JobStatus {
	current, ok := o.jobs.Get(id)
	if !ok {
		return ""
	}
	job, err := o.jobs.Begin(id, transcode.OutputName(current.SourceName, opts.Format))
	if err != nil {
		o.log.Warn("job skipped", zap.String("job_id", id), zap.Error(err))
		return ""
	}

	ctx, span := o.tracer.Start(ctx, "batch.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.source", job.SourceName),
		attribute.Int64("job.source_size", job.SourceSize),
	))
	defer span.End()

	log := o.log.With(zap.String("job_id", job.ID), zap.String("source", job.SourceName))
	start := time.Now()

	input := transcode.InputName(job.SourceName)
	output := transcode.WorkspaceOutputName(job.SourceName, opts.Format)
	defer o.cleanup(h, log, input, output)

	artifact, err := o.convert(ctx, h, job, input, output, opts)
	elapsed := time.Since(start)
	if err != nil {
		reason := userMessage(err)
		if _, failErr := o.jobs.Fail(job.ID, reason); failErr != nil {
			log.Error("record job failure", zap.Error(failErr))
		}
		o.metrics.JobFinished(string(domain.JobStatusError), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		log.Warn("conversion failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return domain.JobStatusError
	}

	if _, err := o.jobs.Complete(job.ID, artifact); err != nil {
		log.Error("record job result", zap.Error(err))
		if _, failErr := o.jobs.Fail(job.ID, "the converted file could not be recorded"); failErr != nil {
			log.Error("record job failure", zap.Error(failErr))
		}
		o.metrics.JobFinished(string(domain.JobStatusError), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "result not recorded")
		return domain.JobStatusError
	}
	o.metrics.JobFinished(string(domain.JobStatusDone), elapsed)
	log.Info("conversion finished",
		zap.String("output", artifact.Name),
		zap.Int("output_bytes", len(artifact.Data)),
		zap.Duration("elapsed", elapsed),
	)
	return domain.JobStatusDone
}

// convert stages the source, runs the engine and reads the result back.
func (o *Orchestrator) convert(
	ctx context.Context,
	h engine.Handle,
	job domain.Job,
	input string,
	output string,
	opts domain.Options,
) (domain.Artifact, error) {
	fail := func(stage Stage, reason string, err error) (domain.Artifact, error) {
		return domain.Artifact{}, &JobExecutionError{Source: job.SourceName, Stage: stage, Reason: reason, Err: err}
	}

	data, err := o.jobs.TakeSource(job.ID)
	if err != nil {
		return fail(StageWrite, "source file is no longer available", err)
	}
	if err := ctx.Err(); err != nil {
		return fail(StageWrite, "cancelled", err)
	}
	if err := h.WriteFile(input, data); err != nil {
		return fail(StageWrite, "could not load the source file into the engine", err)
	}

	if err := ctx.Err(); err != nil {
		return fail(StageExec, "cancelled", err)
	}

	unsubscribe := h.OnProgress(func(ratio float64) {
		o.jobs.SetProgress(job.ID, toPercent(ratio))
	})
	err = h.Exec(ctx, transcode.Build(input, output, opts))
	unsubscribe()
	if err != nil {
		reason := "conversion failed"
		var execErr *engine.ExecError
		switch {
		case ctx.Err() != nil:
			reason = "cancelled"
		case errors.As(err, &execErr) && execErr.Reason != "":
			reason = execErr.Reason
		}
		return fail(StageExec, reason, err)
	}

	out, err := h.ReadFile(output)
	if err != nil {
		return fail(StageRead, "the converted file could not be read", err)
	}
	if len(out) == 0 {
		return fail(StageRead, "the engine produced an empty file", nil)
	}

	return domain.Artifact{
		Name:     job.OutputName,
		MIMEType: transcode.MIMEType(opts.Format),
		Data:     out,
	}, nil
}

// cleanup removes workspace entries. Failures are logged and counted but
// never change the job outcome.
func (o *Orchestrator) cleanup(h engine.Handle, log *zap.Logger, names ...string) {
	for _, name := range names {
		err := h.DeleteFile(name)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		o.metrics.CleanupFailed()
		log.Warn("workspace cleanup failed", zap.String("entry", name), zap.Error(err))
	}
}

// toPercent maps an engine ratio to a whole percentage in [0,100].
func toPercent(ratio float64) int {
	if math.IsNaN(ratio) || ratio <= 0 {
		return 0
	}
	if ratio >= 1 {
		return 100
	}
	return int(math.Round(ratio * 100))
}

func userMessage(err error) string {
	var jobErr *JobExecutionError
	if errors.As(err, &jobErr) && jobErr.Reason != "" {
		return jobErr.Reason
	}
	return "conversion failed"
}
