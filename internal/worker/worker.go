// Package worker runs single page-extraction and discovery tasks. Each Run
// owns one browser session from open to close and reports exactly one
// crawler.WorkerResult.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/content"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/extraction"
	"github.com/JakeFAU/venue-crawler/internal/progress"
)

// State is a task worker lifecycle state.
type State string

// Worker states.
const (
	StateIdle              State = "idle"
	StateLoading           State = "loading"
	StateContentExtracting State = "content_extracting"
	StateStructuredParsing State = "structured_parsing"
	StateLinkExtracting    State = "link_extracting"
	StateFallback          State = "fallback"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Progress event types.
const (
	EventProgress = string(progress.TypeProgress)
	EventComplete = string(progress.TypeComplete)
	EventError    = string(progress.TypeError)
)

// ContentExtractor turns a loaded page into text.
type ContentExtractor interface {
	Extract(ctx context.Context, page crawler.Page) content.Outcome
}

// RecordExtractor parses page text into a structured record.
type RecordExtractor interface {
	ExtractRecord(ctx context.Context, text, sourceURL string) (crawler.StructuredRecord, error)
}

// LinkExtractor selects candidate links from navigation markup.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, navHTML, sourceURL string) (extraction.LinkResult, error)
}

// Option configures a worker.
type Option func(*base)

// WithLogger sets the worker logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock crawler.Clock) Option {
	return func(b *base) {
		if clock != nil {
			b.clock = clock
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type base struct {
	launcher crawler.Launcher
	logger   *zap.Logger
	clock    crawler.Clock
}

func newBase(launcher crawler.Launcher, name string, opts []Option) base {
	b := base{launcher: launcher, logger: zap.NewNop(), clock: systemClock{}}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.Named(name)
	return b
}

// transition emits a state change. Terminal states use the complete and error
// event types; every other state is a progress event.
func transition(emit crawler.EmitFunc, state State, message string, data map[string]any) {
	if emit == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["state"] = string(state)
	eventType := EventProgress
	switch state {
	case StateDone:
		eventType = EventComplete
	case StateFailed:
		eventType = EventError
	}
	emit(eventType, message, data)
}

// open launches a session and navigates to task.URL. On failure it returns a
// non-nil error and no session. A recoverable navigation error keeps the
// session open and is reported only as a progress event.
func (b *base) open(ctx context.Context, task crawler.Task, emit crawler.EmitFunc) (crawler.Session, crawler.NavigationOutcome, error) {
	transition(emit, StateLoading, "opening browser", map[string]any{"url": task.URL})
	session, err := b.launcher.Open(ctx, task)
	if err != nil {
		return nil, crawler.NavigationOutcome{}, err
	}
	nav := session.Navigate(ctx, task.URL)
	switch {
	case nav.Err == nil:
		transition(emit, StateLoading, "page loaded", map[string]any{"status": nav.Status, "finalUrl": nav.FinalURL})
	case nav.Err.Recoverable() && ctx.Err() == nil:
		b.logger.Info("navigation incomplete, continuing with loaded document",
			zap.String("url", task.URL),
			zap.String("kind", string(nav.Err.Kind)),
			zap.Error(nav.Err.Err),
		)
		transition(emit, StateLoading, "navigation incomplete", map[string]any{
			"status":   nav.Status,
			"finalUrl": nav.FinalURL,
			"kind":     string(nav.Err.Kind),
		})
	default:
		b.close(session, task)
		return nil, nav, nav.Err
	}
	return session, nav, nil
}

func (b *base) close(session crawler.Session, task crawler.Task) {
	if err := session.Close(); err != nil {
		b.logger.Warn("session close failed", zap.String("url", task.URL), zap.Error(err))
	}
}

func (b *base) fail(task crawler.Task, emit crawler.EmitFunc, err error) crawler.WorkerResult {
	category := crawler.Category(err)
	b.logger.Info("task failed",
		zap.String("url", task.URL),
		zap.String("category", category),
		zap.Error(err),
	)
	transition(emit, StateFailed, err.Error(), map[string]any{"category": category})
	return crawler.FailedResult(task, 0, err)
}
