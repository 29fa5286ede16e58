package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/content"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// PageWorker executes page extraction tasks.
type PageWorker struct {
	base
	ladder    ContentExtractor
	extractor RecordExtractor
}

// NewPageWorker builds a PageWorker.
func NewPageWorker(launcher crawler.Launcher, ladder ContentExtractor, extractor RecordExtractor, opts ...Option) *PageWorker {
	return &PageWorker{
		base:      newBase(launcher, "page_worker", opts),
		ladder:    ladder,
		extractor: extractor,
	}
}

// Run executes one page extraction task. The session is closed on every
// path before Run returns.
func (w *PageWorker) Run(ctx context.Context, task crawler.Task, emit crawler.EmitFunc) crawler.WorkerResult {
	session, nav, err := w.open(ctx, task, emit)
	if err != nil {
		return w.fail(task, emit, err)
	}
	defer w.close(session, task)

	transition(emit, StateContentExtracting, "extracting page text", nil)
	outcome := w.ladder.Extract(ctx, session)
	switch outcome.Status {
	case content.StatusBlocked:
		return w.fail(task, emit, fmt.Errorf("%w: HTTP %d after %d strategies", crawler.ErrBlockedPage, nav.Status, len(outcome.Attempts)))
	case content.StatusInsufficient:
		return w.fail(task, emit, fmt.Errorf("%w: no strategy produced enough text after %d attempts%s", crawler.ErrInsufficientContent, len(outcome.Attempts), navigationNote(nav)))
	}

	transition(emit, StateStructuredParsing, "parsing structured record", map[string]any{
		"strategy": string(outcome.Text.Strategy),
		"chars":    outcome.Text.CharCount,
	})
	rec, err := w.extractor.ExtractRecord(ctx, outcome.Text.Text, task.URL)
	if err != nil {
		return w.fail(task, emit, err)
	}

	result := &crawler.PageResult{
		URL:      task.URL,
		Success:  rec.Success,
		Vendor:   rec.VendorName,
		DJ:       rec.DJName,
		Show:     rec.Show,
		Source:   task.URL,
		Error:    rec.Error,
		Strategy: string(outcome.Text.Strategy),
	}
	w.logger.Debug("page extracted",
		zap.String("url", task.URL),
		zap.Bool("success", rec.Success),
		zap.String("strategy", result.Strategy),
	)
	transition(emit, StateDone, "page extracted", map[string]any{"success": rec.Success})
	return crawler.WorkerResult{Kind: crawler.ResultComplete, Task: task, Page: result}
}

func navigationNote(nav crawler.NavigationOutcome) string {
	if nav.Err == nil {
		return ""
	}
	return " (" + nav.Err.Error() + ")"
}
