// Package app builds and owns the long-lived services behind every command:
// the logger, metrics, progress hub, worker pool, pipeline runner and API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/api"
	"github.com/JakeFAU/venue-crawler/internal/browser"
	"github.com/JakeFAU/venue-crawler/internal/config"
	"github.com/JakeFAU/venue-crawler/internal/content"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/extraction"
	"github.com/JakeFAU/venue-crawler/internal/logging"
	"github.com/JakeFAU/venue-crawler/internal/metrics"
	"github.com/JakeFAU/venue-crawler/internal/pipeline"
	"github.com/JakeFAU/venue-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/venue-crawler/internal/pool"
	"github.com/JakeFAU/venue-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/venue-crawler/internal/progress/sinks"
	"github.com/JakeFAU/venue-crawler/internal/sink"
	fssink "github.com/JakeFAU/venue-crawler/internal/sink/fs"
	"github.com/JakeFAU/venue-crawler/internal/store"
	"github.com/JakeFAU/venue-crawler/internal/store/memory"
	"github.com/JakeFAU/venue-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors
	hub      *progress.Hub
	runs     store.RunRepository
	pool     *pool.Pool
	pipeline *pipeline.Runner
	server   *api.Server
}

type buildOptions struct {
	logger   *zap.Logger
	launcher crawler.Launcher
	sinks    []progress.Sink
}

// Option customizes Build.
type Option func(*buildOptions)

// WithLogger replaces the logger built from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithLauncher replaces the configured browser engine.
func WithLauncher(l crawler.Launcher) Option {
	return func(o *buildOptions) { o.launcher = l }
}

// WithProgressSinks adds sinks to the progress hub.
func WithProgressSinks(sinks ...progress.Sink) Option {
	return func(o *buildOptions) { o.sinks = append(o.sinks, sinks...) }
}

// Build creates the application's dependencies. Nothing is started until
// Serve is called; Close releases what Build acquired.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("browser_engine", cfg.Browser.Engine),
		zap.Int("concurrency", cfg.Pool.Concurrency),
	)

	var err error
	a.metrics, err = metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}
	if err := a.setupProgress(o.sinks); err != nil {
		return nil, err
	}

	launcher := o.launcher
	if launcher == nil {
		launcher = a.newLauncher()
	}
	client, err := extraction.New(extraction.Config{
		Endpoint:  cfg.Extraction.Endpoint,
		APIKey:    cfg.Extraction.APIKey,
		Timeout:   cfg.Extraction.Timeout,
		RateLimit: cfg.Extraction.RateLimit,
		Burst:     cfg.Extraction.Burst,
	}, extraction.WithLogger(logger), extraction.WithObserver(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("extraction client init failed: %w", err)
	}
	a.pool = a.newPool(launcher, client)

	recordSink, err := a.newRecordSink()
	if err != nil {
		return nil, err
	}
	a.pipeline = pipeline.New(a.pool,
		pipeline.WithSink(recordSink),
		pipeline.WithEmitter(a.hub),
		pipeline.WithLogger(logger),
	)
	a.server = api.NewServer(api.Deps{
		Pipeline: a.pipeline,
		Tasks:    a.pool,
		Runs:     a.runs,
		Metrics:  a.metrics,
		Logger:   logger,
	}, cfg.Server)
	return a, nil
}

func (a *App) setupProgress(extra []progress.Sink) error {
	a.runs = memory.NewRunStore(a.cfg.Progress.MaxRunEvents)
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinks := []progress.Sink{
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	}
	sinks = append(sinks, extra...)
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		FlushInterval:  a.cfg.Progress.FlushInterval,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinks...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("flush_interval", hubCfg.FlushInterval),
		zap.Int("sinks", len(sinks)),
	)
	return nil
}

func (a *App) newLauncher() crawler.Launcher {
	fingerprints := browser.NewRandomFingerprinter(nil, 0, 0)
	if a.cfg.Browser.Engine == config.EngineStatic {
		a.logger.Info("using static page engine", zap.Bool("cloudflare_bypass", a.cfg.Browser.CloudflareBypass))
		return browser.NewStaticLauncher(browser.StaticConfig{
			Timeout:          a.cfg.Browser.NavigationTimeout,
			CloudflareBypass: a.cfg.Browser.CloudflareBypass,
		}, fingerprints, a.logger)
	}
	a.logger.Info("using chrome page engine", zap.Bool("headless", a.cfg.Browser.Headless))
	return browser.NewChromeLauncher(browser.ChromeConfig{
		Headless:          a.cfg.Browser.Headless,
		ExecPath:          a.cfg.Browser.ExecPath,
		NavigationTimeout: a.cfg.Browser.NavigationTimeout,
		IdleWindow:        a.cfg.Browser.IdleWindow,
	}, fingerprints, a.logger)
}

// pageBudget is the worst-case time a page task spends navigating, climbing
// the ladder and waiting on the extraction service.
func pageBudget(cfg config.Config, ladder *content.Ladder) time.Duration {
	return cfg.Browser.NavigationTimeout + ladder.Budget() + cfg.Extraction.Timeout
}

func (a *App) newPool(launcher crawler.Launcher, client *extraction.Client) *pool.Pool {
	ladder := content.NewLadder(nil,
		content.NewDetector(a.cfg.Ladder.MinChars, a.cfg.Ladder.ShortPageChars),
		content.WithLogger(a.logger),
		content.WithObserver(a.metrics),
	)
	if budget := pageBudget(a.cfg, ladder); budget >= a.cfg.Pool.TaskTimeout {
		a.logger.Warn("page task budget exceeds task timeout; slow pages will report WorkerTimeout",
			zap.Duration("budget", budget),
			zap.Duration("task_timeout", a.cfg.Pool.TaskTimeout),
		)
	}
	workerLogger := worker.WithLogger(a.logger)
	pageWorker := worker.NewPageWorker(launcher, ladder, client, workerLogger)
	discoveryWorker := worker.NewDiscoveryWorker(launcher, client, worker.DiscoveryConfig{
		MaxCandidates:   a.cfg.Discovery.MaxCandidates,
		MaxPayloadBytes: a.cfg.Discovery.MaxPayloadBytes,
		Settle:          a.cfg.Discovery.Settle,
	}, workerLogger)

	pacer := ratelimit.New(ratelimit.Config{
		LaunchesPerSecond: a.cfg.Pool.LaunchesPerSecond,
		Burst:             a.cfg.Pool.LaunchBurst,
	}, a.metrics)

	return pool.New(pool.Config{
		Concurrency:     a.cfg.Pool.Concurrency,
		TaskTimeout:     a.cfg.Pool.TaskTimeout,
		MemoryPerWorker: a.cfg.Pool.MemoryPerWorkerMB << 20,
	},
		pool.WithRunner(crawler.KindPageExtraction, pageWorker),
		pool.WithRunner(crawler.KindDiscovery, discoveryWorker),
		pool.WithPacer(pacer),
		pool.WithEmitter(a.hub),
		pool.WithObserver(a.metrics),
		pool.WithLogger(a.logger),
	)
}

func (a *App) newRecordSink() (sink.RecordSink, error) {
	if a.cfg.Output.Dir == "" {
		a.logger.Info("no output directory configured, records are discarded after aggregation")
		return sink.Noop{}, nil
	}
	s, err := fssink.New(fssink.Config{BaseDir: a.cfg.Output.Dir, Indent: a.cfg.Output.Indent})
	if err != nil {
		return nil, fmt.Errorf("record sink init failed: %w", err)
	}
	a.logger.Info("writing records to filesystem", zap.String("dir", a.cfg.Output.Dir))
	return s, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Pipeline returns the pipeline runner.
func (a *App) Pipeline() *pipeline.Runner { return a.pipeline }

// Pool returns the worker pool.
func (a *App) Pool() *pool.Pool { return a.pool }

// Runs returns the run repository.
func (a *App) Runs() store.RunRepository { return a.runs }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Serve runs the HTTP server until ctx is canceled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("pipeline runs still active at shutdown", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Close flushes the progress hub and the logger.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync fails on some terminals; it is best-effort.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Run crawls seedURL end to end.
func (a *App) Run(ctx context.Context, seedURL string, includeSubdomains bool) (pipeline.Result, error) {
	res, err := a.pipeline.Run(ctx, seedURL, includeSubdomains)
	if err != nil {
		return res, fmt.Errorf("pipeline run: %w", err)
	}
	return res, nil
}

// RunTask executes a single discovery or page task under a fresh run ID.
func (a *App) RunTask(ctx context.Context, task crawler.Task) (crawler.WorkerResult, error) {
	runID, err := a.pipeline.NewRunID()
	if err != nil {
		return crawler.WorkerResult{}, err
	}
	results, err := a.pool.Run(ctx, runID, []crawler.Task{task})
	if err != nil {
		return results[0], fmt.Errorf("run task %s: %w", task.URL, err)
	}
	return results[0], nil
}
