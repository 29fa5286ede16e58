package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/store/memory"
)

// ExampleProgressHandler_ListRuns shows how to serve the /v1/runs endpoint.
func ExampleProgressHandler_ListRuns() {
	repo := memory.NewRunStore(0)
	runID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	if err := repo.StartRun(context.Background(), runID, "https://bar.com/", time.Unix(0, 0)); err != nil {
		panic(err)
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d, status: %s\n", len(payload.Runs), payload.Runs[0]["status"])
	// Output:
	// returned runs: 1, status: running
}
