// Package progress carries worker and run events from the pool to their
// consumers. A Hub batches events on a background goroutine and fans them
// out to sinks; ChanEmitter hands them to a single reader instead.
package progress
