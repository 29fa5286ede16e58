package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

const (
	defaultNavigationTimeout = 20 * time.Second
	defaultIdleWindow        = 500 * time.Millisecond
	idlePollInterval         = 50 * time.Millisecond
	// responseWait bounds how long Navigate waits for the document response
	// event after the navigation commits.
	responseWait = 2 * time.Second
)

// ChromeConfig controls the headless Chrome engine.
type ChromeConfig struct {
	Headless          bool
	ExecPath          string
	NavigationTimeout time.Duration
	// IdleWindow is how long the network must stay quiet before
	// WaitNetworkIdle returns.
	IdleWindow time.Duration
}

// ChromeLauncher starts one Chrome process per session.
type ChromeLauncher struct {
	cfg          ChromeConfig
	fingerprints Fingerprinter
	logger       *zap.Logger
}

// NewChromeLauncher builds a launcher. A nil fingerprinter uses the default
// rotation and a nil logger discards output.
func NewChromeLauncher(cfg ChromeConfig, fingerprints Fingerprinter, logger *zap.Logger) *ChromeLauncher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = defaultIdleWindow
	}
	if fingerprints == nil {
		fingerprints = NewRandomFingerprinter(nil, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{cfg: cfg, fingerprints: fingerprints, logger: logger.Named("chrome")}
}

// Open implements crawler.Launcher. The browser lives until the returned
// session is closed or ctx is canceled.
func (l *ChromeLauncher) Open(ctx context.Context, task crawler.Task) (crawler.Session, error) {
	fp := l.fingerprints.Next()
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(fp)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         tabCtx,
		cancelTab:   tabCancel,
		cancelAlloc: allocCancel,
		navTimeout:  l.cfg.NavigationTimeout,
		idleWindow:  l.cfg.IdleWindow,
		meta:        newResponseMeta(),
		inflight:    newRequestTracker(),
		logger:      l.logger,
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run on a fresh context starts the browser process.
	if err := chromedp.Run(tabCtx, setupAction(fp)); err != nil {
		tabCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("start chrome: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: start chrome for %s: %v", crawler.ErrLaunchFailure, task.URL, err)
	}
	l.logger.Debug("chrome session started", zap.String("url", task.URL), zap.String("user_agent", fp.UserAgent))
	return s, nil
}

func (l *ChromeLauncher) allocatorOptions(fp Fingerprint) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	headless := any(false)
	if l.cfg.Headless {
		headless = "new"
	}
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(fp.UserAgent),
		chromedp.WindowSize(fp.Width, fp.Height),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

func setupAction(fp Fingerprint) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(fp.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(int64(fp.Width), int64(fp.Height), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
	idleWindow  time.Duration
	meta        *responseMeta
	inflight    *requestTracker
	logger      *zap.Logger

	mu        sync.RWMutex
	url       string
	closeOnce sync.Once
}

func (s *chromeSession) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		s.meta.capture(e)
	case *network.EventRequestWillBeSent:
		s.inflight.start(string(e.RequestID))
	case *network.EventLoadingFinished:
		s.inflight.finish(string(e.RequestID))
	case *network.EventLoadingFailed:
		s.inflight.finish(string(e.RequestID))
	}
}

// run executes actions on the tab while honoring the caller's deadline and
// cancellation. Deriving from the tab context keeps the browser alive when
// only the caller's context ends.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, rawURL string) crawler.NavigationOutcome {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	s.meta.reset()
	if err := s.run(navCtx, navigateAction(rawURL)); err != nil {
		navErr := crawler.ClassifyNavigation(rawURL, err)
		out := crawler.NavigationOutcome{FinalURL: rawURL, Err: navErr}
		if navErr.Recoverable() {
			out.Status, out.FinalURL = s.meta.snapshotWithFallbacks(rawURL, "")
			s.setURL(out.FinalURL)
		}
		return out
	}

	s.meta.await(navCtx, responseWait)
	var finalURL string
	if err := s.run(navCtx, chromedp.Location(&finalURL)); err != nil {
		s.logger.Debug("read location", zap.String("url", rawURL), zap.Error(err))
	}
	status, docURL := s.meta.snapshotWithFallbacks(rawURL, finalURL)
	s.setURL(docURL)
	return crawler.NavigationOutcome{Status: status, FinalURL: docURL}
}

// navigateAction starts a navigation and returns once the document commits,
// without waiting for the load event. Readiness is left to the page waits.
func navigateAction(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(rawURL), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}
		return nil
	})
}

func (s *chromeSession) setURL(u string) {
	s.mu.Lock()
	s.url = u
	s.mu.Unlock()
}

func (s *chromeSession) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

func (s *chromeSession) WaitDOMReady(ctx context.Context) error {
	if err := s.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait dom ready: %w", err)
	}
	return nil
}

func (s *chromeSession) WaitNetworkIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if s.inflight.idleFor(time.Now()) >= s.idleWindow {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait network idle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) Sleep(ctx context.Context, d time.Duration) error {
	if err := s.run(ctx, chromedp.Sleep(d)); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return nil
}

const scrollScript = `(() => {
	window.scrollTo(0, document.body ? document.body.scrollHeight : 0);
	return document.body ? document.body.scrollHeight : 0;
})()`

func (s *chromeSession) ScrollToBottom(ctx context.Context) error {
	var height float64
	if err := s.run(ctx, chromedp.Evaluate(scrollScript, &height)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("chrome close", zap.Error(err))
		} else {
			err = nil
		}
	})
	return err
}

// responseMeta records the first document response after a navigation, which
// is the main frame; redirects never surface as responses.
type responseMeta struct {
	mu       sync.RWMutex
	status   int
	url      string
	captured bool
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.url, m.captured = 0, "", false
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.captured = true
}

// await polls until the document response is captured or max elapses.
func (m *responseMeta) await(ctx context.Context, max time.Duration) {
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	ticker := time.NewTicker(idlePollInterval / 5)
	defer ticker.Stop()
	for {
		m.mu.RLock()
		captured := m.captured
		m.mu.RUnlock()
		if captured {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

// requestTracker counts in-flight network requests for idle detection.
type requestTracker struct {
	mu         sync.Mutex
	inflight   map[string]struct{}
	lastChange time.Time
}

func newRequestTracker() *requestTracker {
	return &requestTracker{inflight: make(map[string]struct{}), lastChange: time.Now()}
}

func (t *requestTracker) start(id string) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *requestTracker) finish(id string) {
	t.mu.Lock()
	if _, ok := t.inflight[id]; ok {
		delete(t.inflight, id)
		t.lastChange = time.Now()
	}
	t.mu.Unlock()
}

// idleFor returns how long no request has been in flight, or zero while any is.
func (t *requestTracker) idleFor(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return 0
	}
	return now.Sub(t.lastChange)
}
