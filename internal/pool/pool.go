// Package pool runs crawl tasks on a bounded set of worker slots. Every task
// races a hard wall-clock deadline and every submitted task gets exactly one
// result, in input order.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/progress"
)

// Defaults.
const (
	DefaultConcurrency = 3
	DefaultTaskTimeout = 100 * time.Second
)

// Runner executes one task. worker.PageWorker and worker.DiscoveryWorker
// satisfy it.
type Runner interface {
	Run(ctx context.Context, task crawler.Task, emit crawler.EmitFunc) crawler.WorkerResult
}

// Pacer delays task launches. *ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Observer receives pool lifecycle signals.
type Observer interface {
	ObserveTask(kind crawler.TaskKind, result string, d time.Duration)
	SetActiveWorkers(n int)
}

// Config tunes the pool.
type Config struct {
	Concurrency int
	TaskTimeout time.Duration
	// MemoryPerWorker caps concurrency so each slot has this many bytes of
	// available memory; zero disables the cap.
	MemoryPerWorker uint64
}

// LaunchError reports that the run was aborted because no browser could be
// started. Results are still returned for every task.
type LaunchError struct {
	URL string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser launch failed for %s: %v", e.URL, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Pool owns the worker slots.
type Pool struct {
	cfg      Config
	runners  map[crawler.TaskKind]Runner
	pacer    Pacer
	emitter  progress.Emitter
	observer Observer
	logger   *zap.Logger
	memory   availableMemory
	active   atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithRunner registers the runner for a task kind.
func WithRunner(kind crawler.TaskKind, r Runner) Option {
	return func(p *Pool) { p.runners[kind] = r }
}

// WithPacer sets the launch pacer.
func WithPacer(pacer Pacer) Option {
	return func(p *Pool) { p.pacer = pacer }
}

// WithEmitter forwards worker progress to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pool) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithObserver reports task outcomes to o.
func WithObserver(o Observer) Option {
	return func(p *Pool) { p.observer = o }
}

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a pool.
func New(cfg Config, opts ...Option) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	p := &Pool{
		cfg:     cfg,
		runners: make(map[crawler.TaskKind]Runner),
		emitter: progress.Discard{},
		logger:  zap.NewNop(),
		memory:  systemAvailableMemory,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pool")
	return p
}

type completion struct {
	index  int
	result crawler.WorkerResult
}

// Run executes tasks and returns one result per task, index-aligned with
// the input. Sibling failures never stop each other; only a browser launch
// failure aborts the run, in which case the error is a *LaunchError and the
// unfinished tasks are marked OrchestratorLaunchFailure.
func (p *Pool) Run(ctx context.Context, runID uuid.UUID, tasks []crawler.Task) ([]crawler.WorkerResult, error) {
	results := make([]crawler.WorkerResult, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}
	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	slots := p.slots(len(tasks))
	p.logger.Info("pool run started",
		zap.String("run_id", runID.String()),
		zap.Int("tasks", len(tasks)),
		zap.Int("slots", slots),
	)

	queue := make(chan int)
	done := make(chan completion, len(tasks))
	var wg sync.WaitGroup
	for workerID := 1; workerID <= slots; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if runCtx.Err() != nil {
					continue
				}
				done <- completion{index: idx, result: p.execute(runCtx, runID, workerID, tasks[idx])}
			}
		}()
	}
	go func() {
		defer close(queue)
		for i := range tasks {
			select {
			case queue <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	filled := make([]bool, len(tasks))
	var launchErr *LaunchError
	for c := range done {
		res := c.result
		if launchErr == nil && errors.Is(res.Err, crawler.ErrLaunchFailure) {
			launchErr = &LaunchError{URL: res.Task.URL, Err: res.Err}
			p.logger.Error("aborting run after launch failure", zap.String("url", res.Task.URL), zap.Error(res.Err))
			abort()
		} else if launchErr != nil && res.Failed() {
			res = abortedResult(res.Task, res.WorkerID, launchErr)
		}
		results[c.index] = res
		filled[c.index] = true
	}

	for i, ok := range filled {
		if ok {
			continue
		}
		if launchErr != nil {
			results[i] = abortedResult(tasks[i], 0, launchErr)
			continue
		}
		results[i] = crawler.FailedResult(tasks[i], 0, fmt.Errorf("task not started: %w", context.Cause(runCtx)))
	}
	if launchErr != nil {
		return results, launchErr
	}
	return results, nil
}

func abortedResult(task crawler.Task, workerID int, cause *LaunchError) crawler.WorkerResult {
	return crawler.FailedResult(task, workerID, fmt.Errorf("%w: run aborted after launch failure for %s", crawler.ErrLaunchFailure, cause.URL))
}

// execute runs one task on a slot. A timed-out task releases its slot at
// once; the worker keeps cleaning up in the background and its late result
// and events are discarded.
func (p *Pool) execute(ctx context.Context, runID uuid.UUID, workerID int, task crawler.Task) crawler.WorkerResult {
	start := time.Now()
	res := p.attempt(ctx, runID, workerID, task)
	res.WorkerID = workerID
	if res.Page != nil {
		res.Page.WorkerID = workerID
	}
	outcome := string(res.Kind)
	if errors.Is(res.Err, crawler.ErrWorkerTimeout) {
		outcome = "timeout"
	}
	if p.observer != nil {
		p.observer.ObserveTask(task.Kind, outcome, time.Since(start))
	}
	return res
}

func (p *Pool) attempt(ctx context.Context, runID uuid.UUID, workerID int, task crawler.Task) crawler.WorkerResult {
	runner, ok := p.runners[task.Kind]
	if !ok {
		return crawler.FailedResult(task, workerID, fmt.Errorf("no runner for task kind %q", task.Kind))
	}
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx, task.URL); err != nil {
			return crawler.FailedResult(task, workerID, err)
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gate := &eventGate{}
	emit := func(eventType, message string, data any) {
		gate.forward(func() {
			p.emitter.Emit(progress.Event{
				RunID:    runID,
				TS:       time.Now(),
				Type:     progress.Type(eventType),
				WorkerID: workerID,
				Kind:     task.Kind,
				URL:      task.URL,
				Message:  message,
				Data:     data,
			})
		})
	}

	p.trackActive(1)
	resultCh := make(chan crawler.WorkerResult, 1)
	go func() {
		defer p.trackActive(-1)
		resultCh <- runner.Run(taskCtx, task, emit)
	}()

	timer := time.NewTimer(p.cfg.TaskTimeout)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		gate.close(nil)
		return res
	case <-timer.C:
		p.logger.Warn("task timed out",
			zap.Int("worker_id", workerID),
			zap.String("url", task.URL),
			zap.Duration("timeout", p.cfg.TaskTimeout),
		)
		err := fmt.Errorf("%w: no result within %s", crawler.ErrWorkerTimeout, p.cfg.TaskTimeout)
		gate.close(func() { p.emitTerminal(runID, workerID, task, err) })
		return crawler.FailedResult(task, workerID, err)
	case <-ctx.Done():
		gate.close(nil)
		return crawler.FailedResult(task, workerID, fmt.Errorf("task canceled: %w", context.Cause(ctx)))
	}
}

// eventGate forwards a task's events until the pool has reported the task.
// Emitters never block, so holding the lock while emitting is safe.
type eventGate struct {
	mu     sync.Mutex
	closed bool
}

func (g *eventGate) forward(emit func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		emit()
	}
}

// close stops forwarding. final, when set, is the last event of the task.
func (g *eventGate) close(final func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if final != nil {
		final()
	}
}

// emitTerminal reports the synthetic failure so event consumers see every
// task finish exactly once.
func (p *Pool) emitTerminal(runID uuid.UUID, workerID int, task crawler.Task, err error) {
	p.emitter.Emit(progress.Event{
		RunID:    runID,
		TS:       time.Now(),
		Type:     progress.TypeError,
		WorkerID: workerID,
		Kind:     task.Kind,
		URL:      task.URL,
		Message:  err.Error(),
		Data:     map[string]any{"state": "failed", "category": crawler.Category(err)},
	})
}

func (p *Pool) trackActive(delta int64) {
	n := p.active.Add(delta)
	if p.observer != nil {
		p.observer.SetActiveWorkers(int(n))
	}
}
