package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/discovery"
)

// DiscoveryConfig tunes discovery tasks.
type DiscoveryConfig struct {
	MaxCandidates   int
	MaxPayloadBytes int
	// Settle is the pause after DOM ready before the page is read.
	Settle time.Duration
}

// DiscoveryWorker executes discovery tasks.
type DiscoveryWorker struct {
	base
	cfg   DiscoveryConfig
	links LinkExtractor
}

// NewDiscoveryWorker builds a DiscoveryWorker.
func NewDiscoveryWorker(launcher crawler.Launcher, links LinkExtractor, cfg DiscoveryConfig, opts ...Option) *DiscoveryWorker {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = discovery.DefaultMaxCandidates
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = discovery.DefaultMaxPayloadBytes
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	return &DiscoveryWorker{
		base:  newBase(launcher, "discovery_worker", opts),
		cfg:   cfg,
		links: links,
	}
}

// Run discovers candidate URLs for the seed in task.URL. When link
// extraction fails the deterministic fallback extractor is used instead.
func (w *DiscoveryWorker) Run(ctx context.Context, task crawler.Task, emit crawler.EmitFunc) crawler.WorkerResult {
	start := w.clock.Now()
	scope := task.Scope
	if scope == nil {
		var err error
		if scope, err = crawler.NewScope(task.URL, false); err != nil {
			return w.fail(task, emit, err)
		}
	}

	session, nav, err := w.open(ctx, task, emit)
	if err != nil {
		return w.fail(task, emit, err)
	}
	defer w.close(session, task)

	pageHTML, err := w.render(ctx, session)
	if err != nil {
		return w.fail(task, emit, err)
	}
	pageURL := nav.FinalURL
	if pageURL == "" {
		pageURL = task.URL
	}

	transition(emit, StateLinkExtracting, "extracting links", nil)
	candidates, siteName, usedFallback, err := w.candidates(ctx, emit, pageURL, pageHTML, scope)
	if err != nil {
		return w.fail(task, emit, err)
	}
	if siteName == "" {
		siteName = discovery.SiteName(pageHTML, pageURL)
	}
	candidates = w.withSeed(task.URL, candidates)

	result := &crawler.DiscoveryResult{
		Success:         true,
		URLs:            discovery.URLs(candidates),
		Candidates:      candidates,
		SiteName:        siteName,
		DiscoveryTimeMs: w.clock.Now().Sub(start).Milliseconds(),
		UsedFallback:    usedFallback,
	}
	w.logger.Info("discovery finished",
		zap.String("url", task.URL),
		zap.Int("candidates", len(result.URLs)),
		zap.Bool("fallback", usedFallback),
	)
	transition(emit, StateDone, "discovery finished", map[string]any{"urls": len(result.URLs), "fallback": usedFallback})
	return crawler.WorkerResult{Kind: crawler.ResultComplete, Task: task, Discovery: result}
}

func (w *DiscoveryWorker) render(ctx context.Context, session crawler.Session) (string, error) {
	if err := session.WaitDOMReady(ctx); err != nil {
		w.logger.Debug("dom ready wait failed", zap.Error(err))
	}
	if w.cfg.Settle > 0 {
		if err := session.Sleep(ctx, w.cfg.Settle); err != nil {
			w.logger.Debug("settle interrupted", zap.Error(err))
		}
	}
	pageHTML, err := session.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read seed page: %w", err)
	}
	return pageHTML, nil
}

func (w *DiscoveryWorker) candidates(
	ctx context.Context,
	emit crawler.EmitFunc,
	pageURL, pageHTML string,
	scope *crawler.ScopeConfig,
) ([]crawler.CandidateURL, string, bool, error) {
	payload, err := discovery.BuildPayload(pageHTML, w.cfg.MaxPayloadBytes)
	if err != nil {
		return nil, "", false, fmt.Errorf("build link payload: %w", err)
	}

	var reason string
	links, err := w.links.ExtractLinks(ctx, payload.HTML, pageURL)
	if err == nil {
		found := discovery.FilterCandidates(links.URLs, pageURL, scope, w.cfg.MaxCandidates)
		if len(found) > 0 {
			return found, links.SiteName, false, nil
		}
		reason = "link extraction returned no in-scope urls"
	} else {
		reason = err.Error()
	}

	transition(emit, StateFallback, "using fallback link extraction", map[string]any{"reason": reason})
	w.logger.Info("falling back to local link extraction", zap.String("url", pageURL), zap.String("reason", reason))
	found, ferr := discovery.FallbackLinks(pageURL, pageHTML, scope, w.cfg.MaxCandidates)
	if ferr != nil {
		return nil, "", true, fmt.Errorf("fallback link extraction: %w", ferr)
	}
	siteName := ""
	if err == nil {
		siteName = links.SiteName
	}
	return found, siteName, true, nil
}

// withSeed puts the seed URL first and keeps the list within MaxCandidates.
func (w *DiscoveryWorker) withSeed(seed string, candidates []crawler.CandidateURL) []crawler.CandidateURL {
	normalized, err := crawler.NormalizeURL(seed)
	if err != nil {
		return candidates
	}
	out := make([]crawler.CandidateURL, 0, len(candidates)+1)
	out = append(out, crawler.CandidateURL{URL: normalized, Priority: discovery.Priority(normalized, "")})
	for _, c := range candidates {
		if c.URL != normalized {
			out = append(out, c)
		}
	}
	if len(out) > w.cfg.MaxCandidates {
		out = out[:w.cfg.MaxCandidates]
	}
	return out
}
