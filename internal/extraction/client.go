// Package extraction is the client for the external natural-language
// structured extraction service.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// DefaultTimeout bounds every service call.
const DefaultTimeout = 25 * time.Second

// Config controls the extraction client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// RateLimit caps requests per second across all workers; zero disables it.
	RateLimit float64
	Burst     int
}

// Observer receives one call per service request.
type Observer interface {
	ObserveExtraction(kind, outcome string, d time.Duration)
}

// Client calls the extraction service. It never retries and is safe for
// concurrent use.
type Client struct {
	http     *resty.Client
	endpoint string
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New builds a client for cfg.Endpoint.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("extraction endpoint %q must be an absolute http(s) url", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	c := &Client{
		http:     httpClient,
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		logger:   zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("extraction")
	return c, nil
}

// ExtractRecord asks the service for a structured record from page text. A
// valid response with success=false is not an error.
func (c *Client) ExtractRecord(ctx context.Context, text, sourceURL string) (crawler.StructuredRecord, error) {
	start := time.Now()
	raw, err := c.call(ctx, request{
		Instructions:   recordInstructions,
		Content:        text,
		SourceURL:      sourceURL,
		SchemaVersion:  RecordSchemaVersion,
		ResponseFormat: "json",
	})
	if err != nil {
		c.observe("record", err, start)
		return crawler.StructuredRecord{}, err
	}
	rec, err := DecodeRecord(raw, sourceURL)
	if err != nil {
		err = &ExtractionError{Reason: ReasonMalformed, Err: err}
		c.observe("record", err, start)
		return crawler.StructuredRecord{}, err
	}
	c.observe("record", nil, start)
	return rec, nil
}

// ExtractLinks asks the service for candidate URLs from navigation markup.
func (c *Client) ExtractLinks(ctx context.Context, navHTML, sourceURL string) (LinkResult, error) {
	start := time.Now()
	raw, err := c.call(ctx, request{
		Instructions:   linksInstructions,
		Content:        navHTML,
		SourceURL:      sourceURL,
		SchemaVersion:  LinksSchemaVersion,
		ResponseFormat: "json",
	})
	if err != nil {
		c.observe("links", err, start)
		return LinkResult{}, err
	}
	links, err := DecodeLinks(raw)
	if err != nil {
		err = &ExtractionError{Reason: ReasonMalformed, Err: err}
		c.observe("links", err, start)
		return LinkResult{}, err
	}
	c.observe("links", nil, start)
	return links, nil
}

func (c *Client) call(ctx context.Context, body request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ExtractionError{Reason: ReasonNetwork, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(c.endpoint)
	if err != nil {
		return nil, &ExtractionError{Reason: ReasonNetwork, Err: err}
	}
	status := resp.StatusCode()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &ExtractionError{Reason: ReasonServerError, Status: status, Err: errors.New(http.StatusText(status))}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &ExtractionError{Reason: ReasonMalformed, Status: status, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	raw, err := unwrapContent(env.Content)
	if err != nil {
		return nil, &ExtractionError{Reason: ReasonMalformed, Status: status, Err: err}
	}
	return raw, nil
}

func (c *Client) observe(kind string, err error, start time.Time) {
	outcome := "ok"
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		outcome = string(extErr.Reason)
		c.logger.Warn("extraction call failed",
			zap.String("kind", kind),
			zap.String("reason", outcome),
			zap.Int("status", extErr.Status),
			zap.Error(extErr.Err),
		)
	}
	if c.observer != nil {
		c.observer.ObserveExtraction(kind, outcome, time.Since(start))
	}
}
