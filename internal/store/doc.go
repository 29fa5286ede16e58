// Package store defines the run progress repository the API reads from.
// Implementations live in subpackages.
package store
