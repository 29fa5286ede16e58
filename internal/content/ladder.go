// Package content turns a loaded page into readable text through an ordered
// ladder of increasingly patient extraction strategies.
package content

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

const defaultStrategyTimeout = 10 * time.Second

// Strategy describes one rung of the ladder. The ladder interprets the
// fields in order: waits, settle, scroll, then read.
type Strategy struct {
	Name            crawler.StrategyName
	Timeout         time.Duration
	WaitDOMReady    bool
	WaitNetworkIdle bool
	Settle          time.Duration
	Scroll          bool
	// RawHTML strips the full document instead of selecting a content region.
	RawHTML bool
}

// DefaultStrategies returns the fast, medium, slow and raw rungs. Their
// budget plus the default navigation and extraction timeouts stays inside
// the default pool task timeout.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: crawler.StrategyFast, Timeout: 6 * time.Second, WaitDOMReady: true, Settle: 500 * time.Millisecond},
		{Name: crawler.StrategyMedium, Timeout: 12 * time.Second, WaitNetworkIdle: true},
		{Name: crawler.StrategySlow, Timeout: 16 * time.Second, WaitDOMReady: true, Settle: 3 * time.Second, Scroll: true},
		{Name: crawler.StrategyRaw, Timeout: 6 * time.Second, RawHTML: true},
	}
}

// Attempt records one strategy run.
type Attempt struct {
	Strategy  crawler.StrategyName `json:"strategy"`
	Status    Status               `json:"status"`
	CharCount int                  `json:"charCount"`
	Duration  time.Duration        `json:"duration"`
	Err       string               `json:"error,omitempty"`
}

// Outcome is the terminal result of a ladder run. Text is set only when
// Status is StatusSufficient.
type Outcome struct {
	Text     *crawler.ExtractedText
	Attempts []Attempt
	Status   Status
}

// Observer receives one call per attempt.
type Observer interface {
	ObserveStrategy(strategy, status string, d time.Duration)
}

// Ladder runs strategies in order until one yields sufficient text.
type Ladder struct {
	strategies []Strategy
	detector   *Detector
	logger     *zap.Logger
	observer   Observer
}

// Option configures a Ladder.
type Option func(*Ladder)

// WithLogger sets the ladder logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ladder) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver reports attempts to o.
func WithObserver(o Observer) Option {
	return func(l *Ladder) { l.observer = o }
}

// NewLadder builds a ladder. Empty strategies use DefaultStrategies and a nil
// detector uses the default thresholds.
func NewLadder(strategies []Strategy, detector *Detector, opts ...Option) *Ladder {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if detector == nil {
		detector = NewDetector(0, 0)
	}
	strategies = append([]Strategy(nil), strategies...)
	for i := range strategies {
		if strategies[i].Timeout <= 0 {
			strategies[i].Timeout = defaultStrategyTimeout
		}
	}
	l := &Ladder{
		strategies: strategies,
		detector:   detector,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("ladder")
	return l
}

// Strategies returns a copy of the configured rungs.
func (l *Ladder) Strategies() []Strategy {
	return append([]Strategy(nil), l.strategies...)
}

// Budget is the worst-case wall time of a full run.
func (l *Ladder) Budget() time.Duration {
	var total time.Duration
	for _, st := range l.strategies {
		total += st.Timeout
	}
	return total
}

// Extract runs the ladder against page. Exhausting every strategy is a normal
// outcome reported through Status.
func (l *Ladder) Extract(ctx context.Context, page crawler.Page) Outcome {
	out := Outcome{Status: StatusInsufficient}
	for _, st := range l.strategies {
		if ctx.Err() != nil {
			break
		}
		attempt, text := l.run(ctx, page, st)
		out.Attempts = append(out.Attempts, attempt)
		if l.observer != nil {
			l.observer.ObserveStrategy(string(st.Name), string(attempt.Status), attempt.Duration)
		}
		l.logger.Debug("strategy finished",
			zap.String("url", page.URL()),
			zap.String("strategy", string(st.Name)),
			zap.String("status", string(attempt.Status)),
			zap.Int("chars", attempt.CharCount),
			zap.Duration("duration", attempt.Duration),
		)
		if attempt.Err == "" {
			out.Status = attempt.Status
		}
		if attempt.Status == StatusSufficient {
			out.Text = &crawler.ExtractedText{Text: text, Strategy: st.Name, CharCount: attempt.CharCount}
			return out
		}
	}
	return out
}

func (l *Ladder) run(ctx context.Context, page crawler.Page, st Strategy) (Attempt, string) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, st.Timeout)
	defer cancel()

	text, err := l.collect(stageCtx, page, st)
	attempt := Attempt{Strategy: st.Name, Duration: time.Since(start)}
	if err != nil {
		attempt.Status = StatusInsufficient
		attempt.Err = err.Error()
		return attempt, ""
	}
	attempt.CharCount = utf8.RuneCountInString(text)
	attempt.Status = l.detector.Assess(text)
	return attempt, text
}

// collect performs the waits under most of the stage budget so the final read
// still has time when a wait runs out. Wait failures are not fatal.
func (l *Ladder) collect(ctx context.Context, page crawler.Page, st Strategy) (string, error) {
	waitBudget := st.Timeout * 4 / 5
	waitCtx, cancel := context.WithTimeout(ctx, waitBudget)
	defer cancel()

	for _, step := range l.waitSteps(page, st) {
		if err := step(waitCtx); err != nil {
			l.logger.Debug("wait step failed", zap.String("strategy", string(st.Name)), zap.Error(err))
			break
		}
	}

	pageHTML, err := page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("%s strategy: %w", st.Name, err)
	}
	if st.RawHTML {
		return StripHTML(pageHTML), nil
	}
	text, err := RegionText(pageHTML, l.detector.MinChars)
	if err != nil {
		return "", fmt.Errorf("%s strategy: parse html: %w", st.Name, err)
	}
	return text, nil
}

func (l *Ladder) waitSteps(page crawler.Page, st Strategy) []func(context.Context) error {
	var steps []func(context.Context) error
	if st.WaitDOMReady {
		steps = append(steps, page.WaitDOMReady)
	}
	if st.WaitNetworkIdle {
		steps = append(steps, page.WaitNetworkIdle)
	}
	if st.Settle > 0 {
		settle := st.Settle
		steps = append(steps, func(ctx context.Context) error { return page.Sleep(ctx, settle) })
	}
	if st.Scroll {
		steps = append(steps, page.ScrollToBottom, func(ctx context.Context) error {
			return page.Sleep(ctx, 750*time.Millisecond)
		})
	}
	return steps
}
