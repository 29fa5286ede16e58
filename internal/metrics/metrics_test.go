package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestCollectorsObservers(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c.ObserveTask(crawler.KindPageExtraction, "complete", 2*time.Second)
	c.ObserveTask(crawler.KindPageExtraction, "timeout", 100*time.Second)
	c.SetActiveWorkers(3)
	c.ObserveStrategy("fast", "Sufficient", time.Second)
	c.ObserveExtraction("record", "ServerError", time.Second)
	c.ObserveLaunchDelay("bar.com", 250*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksTotal.WithLabelValues("page_extraction", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeWorkers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.strategyTotal.WithLabelValues("fast", "Sufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.extractionTotal.WithLabelValues("record", "ServerError")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.launchDelaySeconds))
}

func TestCollectorsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.ErrorContains(t, err, "register metrics collector")
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)
	c.SetActiveWorkers(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "venuecrawler_active_workers 1")
}
