package watcher

import "time"

// WithDebounce overrides the settle period between a ref update and the
// emitted revision.
func WithDebounce(d time.Duration) Options {
	return func(o *options) {
		o.debounce = d
	}
}
