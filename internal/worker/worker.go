// Package worker pulls training jobs from the broker one at a time and
// executes them, publishing progress and terminal results back to the broker
// and trained artifacts to the registry. A failing job never takes the worker
// down with it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/broker"
	"github.com/seantiz/prophet/internal/model"
	"github.com/seantiz/prophet/internal/registry"
)

// ErrRecycled signals that the worker has executed its configured job budget
// and the process should exit so a fresh one takes its place. Bounds memory
// growth across many training runs; not a correctness requirement.
var ErrRecycled = errors.New("worker recycled after max jobs")

// Config holds the worker's tunables.
type Config struct {
	// MaxJobsPerRun recycles the worker after this many executed jobs.
	// Zero disables recycling.
	MaxJobsPerRun int
	// ReportInterval throttles progress writes to the broker.
	ReportInterval time.Duration
	// DequeueTimeout bounds each blocking poll of the queue.
	DequeueTimeout time.Duration
}

// Worker executes training jobs sequentially with a prefetch of one.
type Worker struct {
	id        string
	broker    broker.Broker
	backends  map[string]backend.Backend
	registry  *registry.Registry
	artifacts *registry.ArtifactStore
	logger    *slog.Logger
	cfg       Config
}

// New creates a worker with a generated id.
func New(b broker.Broker, backends map[string]backend.Backend, reg *registry.Registry, artifacts *registry.ArtifactStore, logger *slog.Logger, cfg Config) *Worker {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 250 * time.Millisecond
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5 * time.Second
	}
	id := uuid.NewString()
	return &Worker{
		id:        id,
		broker:    b,
		backends:  backends,
		registry:  reg,
		artifacts: artifacts,
		logger:    logger.With("worker_id", id),
		cfg:       cfg,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run processes jobs until the context is cancelled or the job budget is
// reached, in which case it returns ErrRecycled.
func (w *Worker) Run(ctx context.Context) error {
	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		job, ok, err := w.broker.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeue failed", "error", err)
			continue
		}
		if !ok {
			continue
		}

		jobsDequeuedTotal.Inc()
		w.execute(ctx, job)
		executed++

		if w.cfg.MaxJobsPerRun > 0 && executed >= w.cfg.MaxJobsPerRun {
			w.logger.Info("job budget reached, recycling", "executed", executed)
			return ErrRecycled
		}
	}
}

// execute runs one job's lifecycle: pending -> started -> progress* ->
// succeeded/failed. Panics and training errors become a failed job, never a
// worker crash.
func (w *Worker) execute(ctx context.Context, job *model.Job) {
	logger := w.logger.With("job_id", job.ID, "kind", job.Kind, "backend", job.Backend)
	start := time.Now()

	if err := w.broker.SetState(ctx, job.ID, model.StateStarted); err != nil {
		logger.Error("failed to transition to started", "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("training panicked", "panic", r)
			w.finishFailed(ctx, job, start, &model.ErrorInfo{
				Message: fmt.Sprintf("training panicked: %v", r),
				Detail:  string(debug.Stack()),
			})
		}
	}()

	reporter := newReporter(w.broker, job.ID, w.cfg.ReportInterval, logger)

	var result *model.Result
	var err error
	switch job.Kind {
	case model.KindTrainAll:
		result, err = w.trainAll(ctx, job, reporter)
	default:
		result, err = w.trainOne(ctx, job, reporter)
	}

	if err != nil {
		logger.Error("training failed", "error", err)
		w.finishFailed(ctx, job, start, &model.ErrorInfo{
			Message: err.Error(),
			Detail:  fmt.Sprintf("%+v", err),
		})
		return
	}

	reporter.flushFinal("Training completed successfully")
	// Terminal writes use a fresh context so a shutdown mid-publish still
	// records the outcome.
	if err := w.broker.SetResult(context.Background(), job.ID, model.StateSucceeded, result); err != nil {
		logger.Error("failed to record result", "error", err)
		return
	}

	duration := time.Since(start)
	jobsCompletedTotal.WithLabelValues(job.Backend, "true").Inc()
	jobDurationSeconds.WithLabelValues(job.Backend).Observe(duration.Seconds())
	logger.Info("job succeeded", "duration_ms", duration.Milliseconds())
}

// trainOne trains a single backend and publishes its artifact.
func (w *Worker) trainOne(ctx context.Context, job *model.Job, reporter *reporter) (*model.Result, error) {
	b, ok := w.backends[job.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", job.Backend)
	}

	metrics, err := w.trainAndPublish(ctx, b, job.Config, reporter.report)
	if err != nil {
		return nil, err
	}
	return &model.Result{Metrics: metrics}, nil
}

// trainAll trains every backend in sequence. Progress counts whole backends;
// per-epoch reports from individual backends are not propagated.
func (w *Worker) trainAll(ctx context.Context, job *model.Job, reporter *reporter) (*model.Result, error) {
	ids := make([]string, 0, len(w.backends))
	for id := range w.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	perBackend := make(map[string]*model.Metrics, len(ids))

	for i, id := range ids {
		reporter.report(i, len(ids), fmt.Sprintf("Training %s backend...", id))

		metrics, err := w.trainAndPublish(ctx, w.backends[id], job.Config, nil)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", id, err)
		}
		perBackend[id] = metrics

		reporter.report(i+1, len(ids), fmt.Sprintf("%s backend training complete", id))
	}

	return &model.Result{PerBackend: perBackend}, nil
}

// trainAndPublish runs one backend's training and, on success, atomically
// publishes the artifact before marking the registry trained. Readers either
// see the old artifact or the complete new one, never a partial write.
func (w *Worker) trainAndPublish(ctx context.Context, b backend.Backend, cfg model.TrainingConfig, report backend.ProgressFunc) (*model.Metrics, error) {
	artifact, metrics, err := b.Train(ctx, cfg, report)
	if err != nil {
		return nil, err
	}

	path, err := w.artifacts.Save(b.Name(), artifact)
	if err != nil {
		return nil, fmt.Errorf("publish artifact: %w", err)
	}
	if err := w.registry.Publish(ctx, b.Name(), path, *metricsCopy(metrics)); err != nil {
		return nil, fmt.Errorf("mark trained: %w", err)
	}
	return metricsCopy(metrics), nil
}

func (w *Worker) finishFailed(_ context.Context, job *model.Job, start time.Time, info *model.ErrorInfo) {
	if err := w.broker.SetResult(context.Background(), job.ID, model.StateFailed, &model.Result{Error: info}); err != nil {
		w.logger.Error("failed to record failure", "job_id", job.ID, "error", err)
	}
	jobsCompletedTotal.WithLabelValues(job.Backend, "false").Inc()
	jobDurationSeconds.WithLabelValues(job.Backend).Observe(time.Since(start).Seconds())
}

func metricsCopy(m model.Metrics) *model.Metrics {
	c := m
	return &c
}

// reporter throttles progress writes to the broker so a chatty training loop
// does not flood it. The first and the final report always go through.
type reporter struct {
	broker   broker.Broker
	jobID    string
	interval time.Duration
	logger   *slog.Logger

	lastWrite time.Time
	lastTotal int
	wrote     bool
}

func newReporter(b broker.Broker, jobID string, interval time.Duration, logger *slog.Logger) *reporter {
	return &reporter{broker: b, jobID: jobID, interval: interval, logger: logger}
}

// report publishes a progress snapshot unless one was written too recently.
// Completion reports (current == total) always flush.
func (r *reporter) report(current, total int, message string) {
	final := total > 0 && current >= total
	if r.wrote && !final && time.Since(r.lastWrite) < r.interval {
		return
	}

	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	p := model.Progress{Current: current, Total: total, Percent: percent, Message: message}
	if err := r.broker.SetProgress(context.Background(), r.jobID, p); err != nil {
		r.logger.Error("failed to write progress", "error", err)
		return
	}

	progressWritesTotal.Inc()
	r.wrote = true
	r.lastWrite = time.Now()
	r.lastTotal = total
}

// flushFinal writes a 100% snapshot if any progress was reported at all.
func (r *reporter) flushFinal(message string) {
	if !r.wrote {
		return
	}
	total := r.lastTotal
	if total <= 0 {
		total = 100
	}
	r.report(total, total, message)
}
