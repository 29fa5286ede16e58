package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/config"
	"github.com/JakeFAU/venue-crawler/internal/content"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:     config.ServerConfig{Port: 8080},
		Browser:    config.BrowserConfig{Engine: config.EngineStatic},
		Extraction: config.ExtractionConfig{Endpoint: "http://127.0.0.1:1/extract", Timeout: time.Second},
		Pool:       config.PoolConfig{Concurrency: 2, TaskTimeout: 5 * time.Second},
		Discovery:  config.DiscoveryConfig{MaxCandidates: 10},
		Progress:   config.ProgressConfig{BufferSize: 16, FlushInterval: 10 * time.Millisecond},
		Output:     config.OutputConfig{Dir: t.TempDir()},
	}
}

type failingLauncher struct{}

func (failingLauncher) Open(context.Context, crawler.Task) (crawler.Session, error) {
	return nil, crawler.ErrLaunchFailure
}

func TestBuildServesProbes(t *testing.T) {
	a, err := Build(testConfig(t), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuildRejectsBadEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.Endpoint = "not-a-url"
	_, err := Build(cfg, WithLogger(zap.NewNop()))
	require.ErrorContains(t, err, "extraction client init failed")
}

func TestPipelineLaunchFailureReachesRunStore(t *testing.T) {
	a, err := Build(testConfig(t), WithLogger(zap.NewNop()), WithLauncher(failingLauncher{}))
	require.NoError(t, err)

	res, err := a.Pipeline().Run(context.Background(), "https://bar.com", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrLaunchFailure)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))

	run, err := a.Runs().GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "error", string(run.Status))
}

func TestRunTaskReturnsLaunchError(t *testing.T) {
	a, err := Build(testConfig(t), WithLogger(zap.NewNop()), WithLauncher(failingLauncher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	scope, err := crawler.NewScope("https://bar.com", false)
	require.NoError(t, err)
	res, err := a.RunTask(context.Background(), crawler.Task{URL: "https://bar.com/", Scope: scope, Kind: crawler.KindDiscovery})
	require.Error(t, err)
	require.ErrorIs(t, err, crawler.ErrLaunchFailure)
	assert.True(t, res.Failed())
	require.NotNil(t, res.Discovery)
	assert.False(t, res.Discovery.Success)
}

func TestDefaultPageBudgetFitsTaskTimeout(t *testing.T) {
	t.Setenv("CRAWLER_EXTRACTION_ENDPOINT", "http://127.0.0.1:1/extract")
	cfg, err := config.Load("")
	require.NoError(t, err)

	budget := pageBudget(cfg, content.NewLadder(nil, nil))
	assert.Equal(t, 85*time.Second, budget)
	assert.Less(t, budget, cfg.Pool.TaskTimeout)
}
