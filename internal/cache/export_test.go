package cache

import "time"

// WithTimeProvider sets the time provider for the store.
func WithTimeProvider(tp timeProvider) Options {
	return func(o *options) {
		o.timeProvider = tp
	}
}

// MockTimeProvider returns a fixed time.
type MockTimeProvider struct {
	CurrentTime time.Time
}

// Now implements timeProvider.Now.
func (m MockTimeProvider) Now() time.Time {
	return m.CurrentTime
}
