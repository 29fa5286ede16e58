// Package pipeline wires discovery, page extraction, aggregation and record
// hand-off into one run per seed URL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/aggregate"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/pool"
	"github.com/JakeFAU/venue-crawler/internal/progress"
	"github.com/JakeFAU/venue-crawler/internal/sink"
)

// TaskRunner executes a batch of tasks. *pool.Pool satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, runID uuid.UUID, tasks []crawler.Task) ([]crawler.WorkerResult, error)
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID     uuid.UUID               `json:"runId"`
	SeedURL   string                  `json:"seedUrl"`
	Discovery crawler.DiscoveryResult `json:"discovery"`
	Pages     []crawler.PageResult    `json:"pages"`
	Report    aggregate.Report        `json:"report"`
	// Location is where the record sink put the report, if anywhere.
	Location string        `json:"location,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner executes pipeline runs. It is safe for concurrent use when its
// collaborators are.
type Runner struct {
	tasks   TaskRunner
	sink    sink.RecordSink
	emitter progress.Emitter
	ids     crawler.IDGenerator
	clock   crawler.Clock
	logger  *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink hands every aggregated report to s.
func WithSink(s sink.RecordSink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithEmitter publishes run lifecycle events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(r *Runner) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock overrides the time source.
func WithClock(c crawler.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a Runner around tasks.
func New(tasks TaskRunner, opts ...Option) *Runner {
	r := &Runner{
		tasks:   tasks,
		sink:    sink.Noop{},
		emitter: progress.Discard{},
		ids:     uuidV7{},
		clock:   utcClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("pipeline")
	return r
}

// NewRunID returns a fresh run ID from the configured generator.
func (r *Runner) NewRunID() (uuid.UUID, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// Run crawls seedURL under a fresh run ID.
func (r *Runner) Run(ctx context.Context, seedURL string, includeSubdomains bool) (Result, error) {
	runID, err := r.NewRunID()
	if err != nil {
		return Result{}, err
	}
	return r.RunWithID(ctx, runID, seedURL, includeSubdomains)
}

// RunWithID crawls seedURL under runID. A discovery failure is not an error:
// the seed shows up in the report diagnostics. A browser launch failure is
// returned as a *pool.LaunchError so callers can tell it apart from a run in
// which every page failed.
func (r *Runner) RunWithID(ctx context.Context, runID uuid.UUID, seedURL string, includeSubdomains bool) (Result, error) {
	start := r.clock.Now()
	res := Result{RunID: runID, SeedURL: seedURL, Pages: []crawler.PageResult{}}
	logger := r.logger.With(zap.String("run_id", runID.String()), zap.String("seed_url", seedURL))

	scope, err := crawler.NewScope(seedURL, includeSubdomains)
	if err != nil {
		return res, r.failRun(runID, seedURL, start, fmt.Errorf("build scope: %w", err))
	}
	seed, err := crawler.NormalizeURL(seedURL)
	if err != nil {
		return res, r.failRun(runID, seedURL, start, fmt.Errorf("normalize seed: %w", err))
	}
	res.SeedURL = seed
	r.emit(progress.Event{RunID: runID, TS: start, Type: progress.TypeRunStart, URL: seed, Message: "run started"})
	logger.Info("run started", zap.Bool("include_subdomains", includeSubdomains))

	discovered, err := r.tasks.Run(ctx, runID, []crawler.Task{{URL: seed, Scope: scope, Kind: crawler.KindDiscovery}})
	if err != nil {
		return res, r.failRun(runID, seed, start, fmt.Errorf("discovery: %w", err))
	}
	disc := discovered[0]
	if disc.Discovery != nil {
		res.Discovery = *disc.Discovery
	}

	if disc.Failed() || !res.Discovery.Success {
		logger.Warn("discovery failed", zap.String("error", res.Discovery.Error))
		res.Pages = append(res.Pages, seedFailure(seed, disc))
	} else {
		tasks := make([]crawler.Task, 0, len(res.Discovery.URLs))
		for _, u := range res.Discovery.URLs {
			tasks = append(tasks, crawler.Task{URL: u, Scope: scope, Kind: crawler.KindPageExtraction})
		}
		pages, err := r.tasks.Run(ctx, runID, tasks)
		if err != nil {
			return res, r.failRun(runID, seed, start, fmt.Errorf("page extraction: %w", err))
		}
		for _, p := range pages {
			if p.Page != nil {
				res.Pages = append(res.Pages, *p.Page)
			}
		}
	}

	res.Report = aggregate.Aggregate(res.Pages)
	res.Location, err = r.sink.Put(ctx, sink.Batch{RunID: runID, SeedURL: seed, Report: res.Report})
	if err != nil {
		return res, r.failRun(runID, seed, start, fmt.Errorf("hand off records: %w", err))
	}

	res.Duration = r.clock.Now().Sub(start)
	r.emit(progress.Event{
		RunID:   runID,
		TS:      r.clock.Now(),
		Type:    progress.TypeRunDone,
		URL:     seed,
		Message: "run finished",
		Data:    res.Report,
		Dur:     res.Duration,
	})
	logger.Info("run finished",
		zap.Int("pages", res.Report.TotalPages),
		zap.Int("records", len(res.Report.Records)),
		zap.Int("failed", res.Report.Diagnostics.FailedCount),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// seedFailure turns a failed discovery into a page entry so the aggregator
// accounts for the seed.
func seedFailure(seed string, disc crawler.WorkerResult) crawler.PageResult {
	msg := "discovery failed"
	if disc.Discovery != nil && disc.Discovery.Error != "" {
		msg = disc.Discovery.Error
	}
	category := crawler.Category(disc.Err)
	if disc.Err == nil {
		category = "DiscoveryFailed"
	}
	return crawler.PageResult{
		URL:           seed,
		WorkerID:      disc.WorkerID,
		Source:        seed,
		Error:         msg,
		ErrorCategory: category,
	}
}

func (r *Runner) failRun(runID uuid.UUID, seed string, start time.Time, err error) error {
	now := r.clock.Now()
	var launchErr *pool.LaunchError
	fields := []zap.Field{zap.String("run_id", runID.String()), zap.Error(err)}
	if errors.As(err, &launchErr) {
		fields = append(fields, zap.String("category", crawler.Category(launchErr)))
	}
	r.logger.Error("run failed", fields...)
	r.emit(progress.Event{
		RunID:   runID,
		TS:      now,
		Type:    progress.TypeRunError,
		URL:     seed,
		Message: err.Error(),
		Dur:     now.Sub(start),
	})
	return err
}

func (r *Runner) emit(evt progress.Event) {
	r.emitter.Emit(evt)
}

type uuidV7 struct{}

func (uuidV7) NewID() (uuid.UUID, error) {
	return uuid.NewV7()
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
