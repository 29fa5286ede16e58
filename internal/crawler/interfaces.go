package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Page is the surface a loaded browser tab exposes to extraction stages.
// Every call must honor ctx deadlines.
type Page interface {
	URL() string
	WaitDOMReady(ctx context.Context) error
	WaitNetworkIdle(ctx context.Context) error
	Sleep(ctx context.Context, d time.Duration) error
	ScrollToBottom(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
}

// Session is a handle to one browser process owned by a single worker.
type Session interface {
	Page
	Navigate(ctx context.Context, rawURL string) NavigationOutcome
	// Close releases the browser process. It is safe to call more than once.
	Close() error
}

// Launcher opens browser sessions. Implementations wrap unrecoverable start
// failures with ErrLaunchFailure.
type Launcher interface {
	Open(ctx context.Context, task Task) (Session, error)
}

// EmitFunc publishes a progress message for the current worker.
type EmitFunc func(eventType, message string, data any)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
