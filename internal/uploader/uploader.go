// Package uploader implements the uploader component.
// The uploader component is responsible for shipping finished runs, report
// and packaged binaries alike, to the artifact service.
package uploader

import (
	"errors"
	"log/slog"
	"time"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/constants"
)

var (
	// ErrRunNotMature is returned when a run is not mature enough to be uploaded based on min age.
	ErrRunNotMature = errors.New("run is not mature enough to be uploaded")
	// ErrSendFailure is returned when a run fails to be sent to the server, either due to a network error or an unexpected status code.
	ErrSendFailure = errors.New("run send failed")
)

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time {
	return time.Now()
}

// Manager is an abstraction of the uploader component.
type Manager struct {
	store  artifact.Store
	minAge time.Duration
	dryRun bool

	baseServerURL   string
	reportsOnly     bool
	maxAttempts     int
	baseRetryPeriod time.Duration
	maxRetryPeriod  time.Duration
	responseTimeout time.Duration
	timeProvider    timeProvider
}

type options struct {
	// Private members exported for tests.
	baseServerURL   string
	reportsOnly     bool
	maxAttempts     int
	baseRetryPeriod time.Duration
	maxRetryPeriod  time.Duration
	responseTimeout time.Duration
	timeProvider    timeProvider
}

// Options represents an optional function to override upload Manager default values.
type Options func(*options)

// WithBaseServerURL overrides the server runs are uploaded to.
func WithBaseServerURL(url string) Options {
	return func(o *options) {
		o.baseServerURL = url
	}
}

// WithoutArtifacts makes the Manager upload run reports only, skipping the
// packaged binaries.
func WithoutArtifacts() Options {
	return func(o *options) {
		o.reportsOnly = true
	}
}

// New returns a new upload Manager over the runs kept in store.
//
// Runs younger than minAge seconds are considered still settling and are
// skipped unless forced.
func New(store artifact.Store, minAge uint, dryRun bool, args ...Options) Manager {
	slog.Debug("Creating new uploader manager", "minAge", minAge, "dryRun", dryRun)

	opts := options{
		baseServerURL:   constants.DefaultServerURL,
		maxAttempts:     8,
		baseRetryPeriod: 30 * time.Second,
		maxRetryPeriod:  30 * time.Minute,
		responseTimeout: 10 * time.Second,
		timeProvider:    realTimeProvider{},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Manager{
		store:  store,
		minAge: time.Duration(minAge) * time.Second,
		dryRun: dryRun,

		baseServerURL:   opts.baseServerURL,
		reportsOnly:     opts.reportsOnly,
		maxAttempts:     opts.maxAttempts,
		baseRetryPeriod: opts.baseRetryPeriod,
		maxRetryPeriod:  opts.maxRetryPeriod,
		responseTimeout: opts.responseTimeout,
		timeProvider:    opts.timeProvider,
	}
}
