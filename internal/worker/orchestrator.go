package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tag-bridge/internal/engine"
	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
	"tag-bridge/internal/scoring"
	"tag-bridge/internal/tagging"
)

// WorkSource is the remote review service as seen by the orchestrator.
type WorkSource interface {
	PendingItems(ctx context.Context, limit int) ([]entity.WorkItem, error)
	ReportResult(ctx context.Context, itemID string, rec entity.ResultRecord) error
}

type Engine interface {
	Submit(ctx context.Context, graph engine.Graph) (string, error)
	AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (entity.RawOutputMap, error)
}

type Stager interface {
	Stage(ctx context.Context, item entity.WorkItem) (Staged, error)
	Cleanup(s Staged)
}

type Notifier interface {
	Notify(ctx context.Context, itemID string, decision entity.PriorityDecision) error
}

type OutcomeRecorder interface {
	Record(ctx context.Context, o entity.Outcome) error
}

// ProfileSource yields the current preference profile. It is read once per
// batch so a rebuilt profile takes effect without a restart.
type ProfileSource interface {
	Load() (entity.PreferenceProfile, error)
}

type Options struct {
	Source     WorkSource
	Engine     Engine
	Stager     Stager
	Normalizer *tagging.Normalizer
	Scorer     *scoring.Scorer
	Workflow   engine.Graph

	// Optional. Profile seeds the snapshot used until Profiles first loads.
	Profile  *entity.PreferenceProfile
	Profiles ProfileSource
	Notifier Notifier
	Recorder OutcomeRecorder
	Tracer   trace.Tracer

	JobTimeout time.Duration
	Pacing     time.Duration
	Logger     *logger.Logger
}

// Orchestrator runs work items one at a time through stage, submit,
// await, normalize, score, report and cleanup.
type Orchestrator struct {
	source     WorkSource
	engine     Engine
	stager     Stager
	normalizer *tagging.Normalizer
	scorer     *scoring.Scorer
	profiles   ProfileSource
	workflow   engine.Graph
	notifier   Notifier
	recorder   OutcomeRecorder
	tracer     trace.Tracer

	jobTimeout time.Duration
	pacing     time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	stats   Stats
	profile *entity.PreferenceProfile
}

// Stats is a snapshot of orchestrator activity since start.
type Stats struct {
	Batches      int                        `json:"batches"`
	Reported     int                        `json:"reported"`
	Failed       int                        `json:"failed"`
	Skipped      int                        `json:"skipped"`
	Dispositions map[entity.Disposition]int `json:"dispositions"`
	LastBatchAt  *time.Time                 `json:"last_batch_at,omitempty"`
	LastError    string                     `json:"last_error,omitempty"`
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Source == nil || opts.Engine == nil || opts.Stager == nil {
		return nil, fmt.Errorf("orchestrator: source, engine and stager are required")
	}
	if len(opts.Workflow) == 0 {
		return nil, engine.ErrEmptyGraph
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = tagging.NewNormalizer(nil, log)
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = scoring.New(scoring.DefaultConfig(), log)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("tag-bridge/worker")
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = engine.DefaultJobTimeout
	}
	pacing := opts.Pacing
	if pacing < 0 {
		pacing = 0
	}

	return &Orchestrator{
		source:     opts.Source,
		engine:     opts.Engine,
		stager:     opts.Stager,
		normalizer: normalizer,
		scorer:     scorer,
		profile:    opts.Profile,
		profiles:   opts.Profiles,
		workflow:   opts.Workflow,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		tracer:     tracer,
		jobTimeout: timeout,
		pacing:     pacing,
		log:        log.With("component", "orchestrator"),
		stats:      Stats{Dispositions: map[entity.Disposition]int{}},
	}, nil
}

// RunBatch fetches up to max pending items and processes them in order.
// It returns how many items were reported successfully. Only a failure to
// fetch the pending list, or cancellation, is returned as an error.
func (o *Orchestrator) RunBatch(ctx context.Context, max int) (int, error) {
	runID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("batch.run_id", runID),
		attribute.Int("batch.max", max),
	))
	defer span.End()

	start := time.Now()
	prof := o.reloadProfile()
	o.log.Info("fetching pending items", "run_id", runID, "limit", max)

	items, err := o.source.PendingItems(ctx, max)
	if err != nil {
		o.recordBatch(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch pending")
		o.log.Error("fetch pending items failed", "error", err)
		return 0, fmt.Errorf("fetch pending: %w", err)
	}
	if len(items) == 0 {
		o.recordBatch(nil)
		o.log.Info("no pending items to process")
		return 0, nil
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	o.log.Info("processing batch", "items", len(items))

	reported := 0
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			o.log.Warn("batch interrupted", "reported", reported, "remaining", len(items)-i)
			return reported, err
		}
		if !item.Valid() {
			o.bump(func(s *Stats) { s.Skipped++ })
			o.log.Warn("skipping item with missing data", "item_id", item.ID, "image_url", item.SourceURL)
			continue
		}

		if o.processItem(ctx, item, prof) {
			reported++
		}

		if i < len(items)-1 && !sleepCtx(ctx, o.pacing) {
			return reported, ctx.Err()
		}
	}

	o.recordBatch(nil)
	span.SetAttributes(attribute.Int("batch.reported", reported), attribute.Int("batch.size", len(items)))
	o.log.Info("batch complete",
		"run_id", runID,
		"reported", reported,
		"total", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reported, nil
}

// ProcessItem runs one item through the pipeline. Every failure, panics
// included, is contained here and logged. It reports whether the result
// reached the remote service.
func (o *Orchestrator) ProcessItem(ctx context.Context, item entity.WorkItem) bool {
	return o.processItem(ctx, item, o.Profile())
}

func (o *Orchestrator) processItem(ctx context.Context, item entity.WorkItem, prof *entity.PreferenceProfile) (reported bool) {
	ctx, span := o.tracer.Start(ctx, "item.process", trace.WithAttributes(attribute.String("item.id", item.ID)))
	defer span.End()

	start := time.Now()
	log := o.log.With("item_id", item.ID)

	defer func() {
		if r := recover(); r != nil {
			reported = false
			span.SetStatus(codes.Error, "panic")
			log.Error("item processing panicked", "panic", fmt.Sprint(r))
		}
		if !reported {
			o.bump(func(s *Stats) { s.Failed++ })
		}
	}()

	log.Info("processing item", "stage", entity.StageFetched)

	staged, err := o.stager.Stage(ctx, item)
	if err != nil {
		o.fail(span, log, entity.StageDownloaded, err)
		return false
	}
	defer func() {
		o.stager.Cleanup(staged)
		log.Debug("item cleaned", "stage", entity.StageCleaned)
	}()
	log.Info("image staged", "stage", entity.StageDownloaded, "file", staged.EngineName)

	graph, found := o.workflow.WithImage(staged.EngineName)
	if !found {
		log.Warn("workflow has no LoadImage node, submitting unchanged")
	}

	jobID, err := o.engine.Submit(ctx, graph)
	if err != nil {
		o.fail(span, log, entity.StageSubmitted, err)
		return false
	}
	job := entity.InferenceJob{JobID: jobID, ItemID: item.ID}
	if c, ok := o.engine.(interface{ CorrelationID() string }); ok {
		job.CorrelationID = c.CorrelationID()
	}
	span.SetAttributes(attribute.String("job.id", job.JobID))
	log = log.With("job_id", job.JobID)
	log.Info("job submitted", "stage", entity.StageSubmitted, "client_id", job.CorrelationID)

	raw, err := o.engine.AwaitCompletion(ctx, job.JobID, o.jobTimeout)
	if err != nil {
		o.fail(span, log, entity.StageCompleted, err)
		return false
	}
	log.Info("job completed", "stage", entity.StageCompleted, "nodes", len(raw))

	rec := o.normalizer.Normalize(raw)
	decision := o.scorer.Score(rec, prof, nil)
	span.SetAttributes(
		attribute.Float64("item.score", decision.Score),
		attribute.String("item.disposition", string(decision.Disposition)),
	)
	log.Info("item scored", "stage", entity.StageScored, "score", decision.Score, "disposition", string(decision.Disposition))

	reportErr := o.source.ReportResult(ctx, item.ID, rec)
	if reportErr != nil {
		o.fail(span, log, entity.StageReported, reportErr)
	} else {
		reported = true
		o.bump(func(s *Stats) {
			s.Reported++
			s.Dispositions[decision.Disposition]++
		})
		log.Info("result reported", "stage", entity.StageReported, "duration_ms", time.Since(start).Milliseconds())
	}

	o.record(ctx, log, entity.Outcome{
		ItemID:      item.ID,
		JobID:       job.JobID,
		Record:      rec.Clamped(),
		Decision:    decision,
		Reported:    reported,
		ProcessedAt: time.Now().UTC(),
	})

	if reported && decision.Disposition == entity.DispositionArchive && o.notifier != nil {
		if err := o.notifier.Notify(ctx, item.ID, decision); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}
	return reported
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.Dispositions = make(map[entity.Disposition]int, len(o.stats.Dispositions))
	for k, v := range o.stats.Dispositions {
		s.Dispositions[k] = v
	}
	return s
}

// Profile returns the snapshot the current batch scores against. Nil means
// no profile has loaded yet.
func (o *Orchestrator) Profile() *entity.PreferenceProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile
}

// reloadProfile swaps in a fresh snapshot from the profile source. On a load
// error the previous snapshot stays in use.
func (o *Orchestrator) reloadProfile() *entity.PreferenceProfile {
	if o.profiles == nil {
		return o.Profile()
	}
	p, err := o.profiles.Load()
	if err != nil {
		prev := o.Profile()
		if errors.Is(err, fs.ErrNotExist) && prev == nil {
			o.log.Debug("no preference profile yet, scoring with neutral values")
		} else {
			o.log.Warn("profile reload failed, keeping previous snapshot", "error", err, "have_previous", prev != nil)
		}
		return prev
	}

	o.mu.Lock()
	o.profile = &p
	o.mu.Unlock()
	o.log.Debug("preference profile loaded", "liked", p.TotalLiked, "disliked", p.TotalDisliked)
	return &p
}

func (o *Orchestrator) record(ctx context.Context, log *logger.Logger, out entity.Outcome) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, out); err != nil {
		log.Warn("record outcome failed", "error", err)
	}
}

func (o *Orchestrator) fail(span trace.Span, log *logger.Logger, stage entity.Stage, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stage))
	log.Error("item failed", "stage", stage, "error", err)
}

func (o *Orchestrator) bump(f func(s *Stats)) {
	o.mu.Lock()
	f(&o.stats)
	o.mu.Unlock()
}

func (o *Orchestrator) recordBatch(err error) {
	now := time.Now().UTC()
	o.bump(func(s *Stats) {
		s.Batches++
		s.LastBatchAt = &now
		if err != nil {
			s.LastError = err.Error()
		} else {
			s.LastError = ""
		}
	})
}

// sleepCtx waits for d or until ctx ends. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
