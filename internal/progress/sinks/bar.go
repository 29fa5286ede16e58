package sinks

import (
	"context"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/progress"
)

// BarSink advances a terminal progress bar as page tasks finish. The total
// is only known once discovery completes, so the bar is grown with Add.
type BarSink struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBarSink renders to w.
func NewBarSink(w io.Writer, description string) *BarSink {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarSink{bar: bar}
}

// SetTotal fixes the number of page tasks expected.
func (s *BarSink) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bar.ChangeMax(n)
}

// Consume advances the bar once per finished page task. A completed
// discovery sets the total from its URL count.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Kind == crawler.KindDiscovery && evt.Type == progress.TypeComplete {
			if data, ok := evt.Data.(map[string]any); ok {
				if n, ok := data["urls"].(int); ok {
					s.bar.ChangeMax(n)
				}
			}
			continue
		}
		if evt.Kind != crawler.KindPageExtraction || !evt.Terminal() {
			continue
		}
		if err := s.bar.Add(1); err != nil {
			return err
		}
	}
	return nil
}

// Close finishes the bar.
func (s *BarSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bar.Finish()
}

// Current returns the number of finished page tasks seen.
func (s *BarSink) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.bar.State().CurrentNum)
}
