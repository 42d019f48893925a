package ingest

import "time"

var (
	ErrServiceClosed = errServiceClosed
)

// WithMaxDegradedDuration overrides how long the service may linger in a degraded state.
func WithMaxDegradedDuration(d time.Duration) Option {
	return func(o *options) {
		o.maxDegradedDuration = d
	}
}
