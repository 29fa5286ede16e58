package browser

import (
	"math/rand/v2"
	"sync"
)

// DefaultUserAgents is the rotation used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Default viewport applied to every session.
const (
	DefaultViewportWidth  = 1366
	DefaultViewportHeight = 900
)

// Fingerprint is the identity a single session presents.
type Fingerprint struct {
	UserAgent string
	Width     int
	Height    int
}

// Fingerprinter hands out one fingerprint per launched session.
type Fingerprinter interface {
	Next() Fingerprint
}

// RandomFingerprinter picks a random user agent per call and never repeats the
// previous pick when more than one agent is available.
type RandomFingerprinter struct {
	mu     sync.Mutex
	agents []string
	width  int
	height int
	last   int
}

// NewRandomFingerprinter builds a fingerprinter. Empty agents fall back to
// DefaultUserAgents and non-positive dimensions to the default viewport.
func NewRandomFingerprinter(agents []string, width, height int) *RandomFingerprinter {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	if width <= 0 {
		width = DefaultViewportWidth
	}
	if height <= 0 {
		height = DefaultViewportHeight
	}
	return &RandomFingerprinter{
		agents: append([]string(nil), agents...),
		width:  width,
		height: height,
		last:   -1,
	}
}

// Next implements Fingerprinter.
func (f *RandomFingerprinter) Next() Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := rand.IntN(len(f.agents))
	if len(f.agents) > 1 && idx == f.last {
		idx = (idx + 1 + rand.IntN(len(f.agents)-1)) % len(f.agents)
	}
	f.last = idx
	return Fingerprint{UserAgent: f.agents[idx], Width: f.width, Height: f.height}
}

// StaticFingerprinter always returns the same fingerprint. Useful in tests.
type StaticFingerprinter Fingerprint

// Next implements Fingerprinter.
func (s StaticFingerprinter) Next() Fingerprint {
	return Fingerprint(s)
}
