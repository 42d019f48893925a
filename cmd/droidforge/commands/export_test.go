package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type (
	AppConfig = appConfig

	NewRunner   = newRunner
	NewUploader = newUploader
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetContext sets the context of the root command for tests.
func (a *App) SetContext(ctx context.Context) {
	a.cmd.SetContext(ctx)
}

// WithNewRunner sets the new runner function for the app.
func WithNewRunner(nr NewRunner) Options {
	return func(o *options) {
		o.newRunner = nr
	}
}

// WithNewUploader sets the new uploader function for the app.
func WithNewUploader(nu NewUploader) Options {
	return func(o *options) {
		o.newUploader = nu
	}
}

// NewAppForTests creates the app with the given arguments, pointing the
// artifacts and cache directories at temporary directories.
func NewAppForTests(t *testing.T, args []string, opts ...Options) (a *App, artifactsDir, cacheDir string) {
	t.Helper()

	artifactsDir = t.TempDir()
	cacheDir = t.TempDir()
	args = append(args, "--artifacts-dir", artifactsDir, "--cache-dir", cacheDir)

	a, err := New(opts...)
	require.NoError(t, err, "Setup: could not create app")

	a.cmd.SetArgs(args)
	return a, artifactsDir, cacheDir
}
