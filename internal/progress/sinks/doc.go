// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, the run repository, and a terminal progress bar. Each sink
// satisfies progress.Sink.
package sinks
