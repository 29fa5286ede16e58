package content

import (
	"context"
	"sync"
	"time"
)

// fakePage serves a sequence of documents, one per HTML call, repeating the
// last. With hang set every call blocks until its context ends.
type fakePage struct {
	mu    sync.Mutex
	docs  []string
	reads int
	hang  bool
	calls []string
}

func (p *fakePage) record(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

func (p *fakePage) block(ctx context.Context) error {
	if p.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) URL() string { return "https://bar.com/karaoke" }

func (p *fakePage) WaitDOMReady(ctx context.Context) error {
	p.record("dom")
	return p.block(ctx)
}

func (p *fakePage) WaitNetworkIdle(ctx context.Context) error {
	p.record("idle")
	return p.block(ctx)
}

func (p *fakePage) Sleep(ctx context.Context, _ time.Duration) error {
	p.record("sleep")
	return p.block(ctx)
}

func (p *fakePage) ScrollToBottom(ctx context.Context) error {
	p.record("scroll")
	return p.block(ctx)
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.record("html")
	if err := p.block(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.reads
	if idx >= len(p.docs) {
		idx = len(p.docs) - 1
	}
	p.reads++
	return p.docs[idx], nil
}
