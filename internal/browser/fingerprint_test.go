package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomFingerprinterNeverRepeatsConsecutively(t *testing.T) {
	t.Parallel()

	fp := NewRandomFingerprinter([]string{"ua-a", "ua-b", "ua-c"}, 800, 600)
	prev := fp.Next()
	for i := 0; i < 200; i++ {
		next := fp.Next()
		assert.NotEqual(t, prev.UserAgent, next.UserAgent)
		assert.Equal(t, 800, next.Width)
		assert.Equal(t, 600, next.Height)
		prev = next
	}
}

func TestRandomFingerprinterDefaults(t *testing.T) {
	t.Parallel()

	fp := NewRandomFingerprinter(nil, 0, -1)
	got := fp.Next()
	assert.Contains(t, DefaultUserAgents, got.UserAgent)
	assert.Equal(t, DefaultViewportWidth, got.Width)
	assert.Equal(t, DefaultViewportHeight, got.Height)

	single := NewRandomFingerprinter([]string{"only"}, 1, 1)
	assert.Equal(t, "only", single.Next().UserAgent)
	assert.Equal(t, "only", single.Next().UserAgent)
}

func TestStaticFingerprinter(t *testing.T) {
	t.Parallel()

	fp := StaticFingerprinter{UserAgent: "test-agent", Width: 10, Height: 20}
	assert.Equal(t, Fingerprint{UserAgent: "test-agent", Width: 10, Height: 20}, fp.Next())
}
