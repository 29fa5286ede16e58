package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func respondContent(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"content": content})
}

func newClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.Endpoint = srv.URL + "/v1/extract"
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func requireReason(t *testing.T, err error, want Reason) *ExtractionError {
	t.Helper()
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, want, extErr.Reason)
	assert.Equal(t, "ExtractionServiceError:"+string(want), crawler.Category(err))
	return extErr
}

func TestExtractRecordSuccess(t *testing.T) {
	t.Parallel()

	captured := make(chan request, 1)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		captured <- req
		respondContent(w, `{"success":true,"show":{"venue":"O'Nelly's","dayOfWeek":"Friday","time":"9pm-2am","lat":"42.5","zip":48103}}`)
	})
	c := newClient(t, srv, Config{APIKey: "secret"})

	rec, err := c.ExtractRecord(context.Background(), "karaoke Friday 9pm O'Nelly's", "https://onellys.com/karaoke")
	require.NoError(t, err)
	assert.True(t, rec.Success)
	require.NotNil(t, rec.Show)
	assert.Equal(t, "O'Nelly's", rec.Show.Venue)
	assert.Equal(t, "friday", rec.Show.DayOfWeek)
	assert.Equal(t, "9pm-2am", rec.Show.Time)
	assert.Equal(t, "48103", rec.Show.Zip)
	require.NotNil(t, rec.Show.Lat)
	assert.InDelta(t, 42.5, *rec.Show.Lat, 1e-9)
	assert.Nil(t, rec.Show.Lng)
	assert.Equal(t, "https://onellys.com/karaoke", rec.SourceURL)

	got := <-captured
	assert.Equal(t, RecordSchemaVersion, got.SchemaVersion)
	assert.Equal(t, "json", got.ResponseFormat)
	assert.Equal(t, "https://onellys.com/karaoke", got.SourceURL)
	assert.Equal(t, "karaoke Friday 9pm O'Nelly's", got.Content)
	assert.NotEmpty(t, got.Instructions)
}

func TestExtractRecordNoShowIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		respondContent(w, "```json\n{\"success\":false,\"error\":\"no schedule on page\",\"show\":{\"venue\":\"ignored\"}}\n```")
	})
	rec, err := newClient(t, srv, Config{}).ExtractRecord(context.Background(), "text", "https://bar.com/")
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Nil(t, rec.Show)
	assert.Equal(t, "no schedule on page", rec.Error)
}

func TestExtractRecordFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  Reason
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			reason: ReasonServerError,
			status: http.StatusInternalServerError,
		},
		{
			name: "redirect is not followed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/elsewhere" {
					respondContent(w, `{"success":true,"show":{"venue":"wrong"}}`)
					return
				}
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
			},
			reason: ReasonServerError,
			status: http.StatusFound,
		},
		{
			name: "invalid envelope json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"content":`)
			},
			reason: ReasonMalformed,
			status: http.StatusOK,
		},
		{
			name: "missing content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"other":"x"}`)
			},
			reason: ReasonMalformed,
			status: http.StatusOK,
		},
		{
			name: "content is not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondContent(w, "I could not find a show, sorry!")
			},
			reason: ReasonMalformed,
		},
		{
			name: "missing success",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondContent(w, `{"show":{"venue":"A"}}`)
			},
			reason: ReasonMalformed,
		},
		{
			name: "success without venue",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondContent(w, `{"success":true,"show":{"dayOfWeek":"friday"}}`)
			},
			reason: ReasonMalformed,
		},
		{
			name: "success without show",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondContent(w, `{"success":true}`)
			},
			reason: ReasonMalformed,
		},
		{
			name: "wrong typed coordinates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondContent(w, `{"success":true,"show":{"venue":"X","lat":"north-ish","lng":{"a":1},"zip":[1,2]}}`)
			},
			reason: ReasonMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, tt.handler)
			rec, err := newClient(t, srv, Config{}).ExtractRecord(context.Background(), "text", "https://bar.com/")
			extErr := requireReason(t, err, tt.reason)
			if tt.status != 0 {
				assert.Equal(t, tt.status, extErr.Status)
			}
			assert.False(t, rec.Success)
			assert.Nil(t, rec.Show)
			assert.NotEmpty(t, err.Error())
		})
	}
}

func TestExtractRecordTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := newClient(t, srv, Config{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.ExtractRecord(context.Background(), "text", "https://bar.com/")
	requireReason(t, err, ReasonNetwork)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	versions := make(chan string, 1)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		versions <- req.SchemaVersion
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":{"urls":["/karaoke"," ","https://bar.com/events"],"siteName":" Bar "}}`)
	})

	links, err := newClient(t, srv, Config{}).ExtractLinks(context.Background(), "<nav></nav>", "https://bar.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/karaoke", "https://bar.com/events"}, links.URLs)
	assert.Equal(t, "Bar", links.SiteName)
	assert.Equal(t, LinksSchemaVersion, <-versions)
}

func TestExtractLinksRequiresURLs(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		respondContent(w, `{"siteName":"Bar"}`)
	})
	_, err := newClient(t, srv, Config{}).ExtractLinks(context.Background(), "<nav></nav>", "https://bar.com/")
	requireReason(t, err, ReasonMalformed)
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "urls", violation.Field)
}

func TestNewValidatesEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "localhost:8080", "ftp://host/x", "http://"} {
		_, err := New(Config{Endpoint: endpoint})
		require.Error(t, err, endpoint)
	}
	c, err := New(Config{Endpoint: "https://llm.internal/extract"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Nil(t, c.limiter)
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveExtraction(kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, kind+":"+outcome)
	o.mu.Unlock()
}

func TestClientConcurrentUseWithRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		respondContent(w, `{"success":true,"show":{"venue":"A"}}`)
	})
	obs := &countingObserver{}
	c, err := New(Config{Endpoint: srv.URL, RateLimit: 1000, Burst: 5}, WithObserver(obs), WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, c.limiter)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := c.ExtractRecord(context.Background(), "t", "https://bar.com/")
			assert.NoError(t, err)
			assert.True(t, rec.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), calls.Load())
	assert.Len(t, obs.outcomes, 10)
	assert.Contains(t, obs.outcomes, "record:ok")
}

func TestExtractionErrorFormatting(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{Reason: ReasonServerError, Status: 503, Err: errors.New("Service Unavailable")}
	assert.Equal(t, "extraction service ServerError (status 503): Service Unavailable", err.Error())
	assert.Equal(t, "ExtractionServiceError:ServerError", err.Category())
	assert.Equal(t, "extraction service Network", (&ExtractionError{Reason: ReasonNetwork}).Error())
}
