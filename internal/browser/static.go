package browser

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// StaticConfig controls the colly-backed engine.
type StaticConfig struct {
	Timeout time.Duration
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
}

// StaticLauncher fetches pages over plain HTTP without executing JavaScript.
// Waits and scrolls are no-ops; the page HTML is the response body.
type StaticLauncher struct {
	cfg           StaticConfig
	fingerprints  Fingerprinter
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewStaticLauncher builds a StaticLauncher sharing one pooled transport.
func NewStaticLauncher(cfg StaticConfig, fingerprints Fingerprinter, logger *zap.Logger) *StaticLauncher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNavigationTimeout
	}
	if fingerprints == nil {
		fingerprints = NewRandomFingerprinter(nil, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.WithTransport(transport)
	return &StaticLauncher{
		cfg:           cfg,
		fingerprints:  fingerprints,
		transport:     transport,
		baseCollector: c,
		logger:        logger.Named("static"),
	}
}

// Open implements crawler.Launcher.
func (l *StaticLauncher) Open(ctx context.Context, _ crawler.Task) (crawler.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open static session: %w", err)
	}
	fp := l.fingerprints.Next()
	return &staticSession{launcher: l, userAgent: fp.UserAgent}, nil
}

func (l *StaticLauncher) buildCollector(ctx context.Context, userAgent string, page *staticPage, fetchErr *error) *colly.Collector {
	collector := l.baseCollector.Clone()
	collector.UserAgent = userAgent
	collector.ParseHTTPErrorResponse = true
	collector.AllowURLRevisit = true
	collector.Context = ctx
	collector.SetRequestTimeout(l.cfg.Timeout)
	collector.WithTransport(l.transport)
	configureCollectorHooks(collector, page, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, page *staticPage, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		page.status = r.StatusCode
		page.url = r.Request.URL.String()
		page.body = string(r.Body)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			page.status = r.StatusCode
			page.url = r.Request.URL.String()
			page.body = string(r.Body)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

type staticPage struct {
	status int
	url    string
	body   string
}

type staticSession struct {
	launcher  *StaticLauncher
	userAgent string

	mu   sync.RWMutex
	page staticPage
}

func (s *staticSession) Navigate(ctx context.Context, rawURL string) crawler.NavigationOutcome {
	navCtx, cancel := context.WithTimeout(ctx, s.launcher.cfg.Timeout)
	defer cancel()

	var (
		page     staticPage
		fetchErr error
	)
	collector := s.launcher.buildCollector(navCtx, s.userAgent, &page, &fetchErr)
	if err := runCollector(navCtx, collector, rawURL, &fetchErr); err != nil {
		s.launcher.logger.Debug("static navigation failed", zap.String("url", rawURL), zap.Error(err))
		return crawler.NavigationOutcome{FinalURL: rawURL, Err: crawler.ClassifyNavigation(rawURL, err)}
	}
	if page.url == "" {
		page.url = rawURL
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return crawler.NavigationOutcome{Status: page.status, FinalURL: page.url}
}

func (s *staticSession) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page.url
}

func (s *staticSession) WaitDOMReady(ctx context.Context) error {
	return ctx.Err()
}

func (s *staticSession) WaitNetworkIdle(ctx context.Context) error {
	return ctx.Err()
}

func (s *staticSession) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (s *staticSession) ScrollToBottom(ctx context.Context) error {
	return ctx.Err()
}

func (s *staticSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page.body, nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	s.page = staticPage{}
	s.mu.Unlock()
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
