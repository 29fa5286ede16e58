package progress

import (
	"sync"
	"sync/atomic"
)

// ChanEmitter delivers events to a single reader over a buffered channel.
// When the reader falls behind, events are dropped rather than blocking
// the workers.
type ChanEmitter struct {
	ch      chan Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewChanEmitter builds an emitter with the given buffer size.
func NewChanEmitter(buffer int) *ChanEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanEmitter{ch: make(chan Event, buffer)}
}

// Emit implements Emitter.
func (c *ChanEmitter) Emit(evt Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- evt:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side. It is closed by Close.
func (c *ChanEmitter) Events() <-chan Event {
	return c.ch
}

// Dropped counts events lost to a full buffer.
func (c *ChanEmitter) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops delivery and closes the channel. Later Emit calls are ignored.
func (c *ChanEmitter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
