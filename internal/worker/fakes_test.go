package worker

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/extraction"
)

type fakeSession struct {
	mu      sync.Mutex
	html    string
	nav     crawler.NavigationOutcome
	visited string
	closes  int
}

func (s *fakeSession) URL() string { return s.visited }

func (s *fakeSession) Navigate(_ context.Context, rawURL string) crawler.NavigationOutcome {
	s.visited = rawURL
	out := s.nav
	if out.Err == nil && out.FinalURL == "" {
		out.FinalURL = rawURL
	}
	if out.Err == nil && out.Status == 0 {
		out.Status = 200
	}
	return out
}

func (s *fakeSession) WaitDOMReady(context.Context) error { return nil }
func (s *fakeSession) WaitNetworkIdle(context.Context) error { return nil }
func (s *fakeSession) Sleep(context.Context, time.Duration) error { return nil }
func (s *fakeSession) ScrollToBottom(context.Context) error { return nil }
func (s *fakeSession) HTML(context.Context) (string, error) { return s.html, nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) Open(context.Context, crawler.Task) (crawler.Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type mockRecordExtractor struct {
	mock.Mock
}

func (m *mockRecordExtractor) ExtractRecord(ctx context.Context, text, sourceURL string) (crawler.StructuredRecord, error) {
	args := m.Called(ctx, text, sourceURL)
	return args.Get(0).(crawler.StructuredRecord), args.Error(1)
}

type mockLinkExtractor struct {
	mock.Mock
}

func (m *mockLinkExtractor) ExtractLinks(ctx context.Context, navHTML, sourceURL string) (extraction.LinkResult, error) {
	args := m.Called(ctx, navHTML, sourceURL)
	return args.Get(0).(extraction.LinkResult), args.Error(1)
}

type event struct {
	Type    string
	Message string
	State   string
}

type eventLog struct {
	mu     sync.Mutex
	events []event
}

func (l *eventLog) emit(eventType, message string, data any) {
	state := ""
	if m, ok := data.(map[string]any); ok {
		state, _ = m["state"].(string)
	}
	l.mu.Lock()
	l.events = append(l.events, event{Type: eventType, Message: message, State: state})
	l.mu.Unlock()
}

func (l *eventLog) states() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.State)
	}
	return out
}

func (l *eventLog) last() event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}
