package pipeline

import "time"

// WithTimeProvider sets the time provider for the runner.
func WithTimeProvider(tp timeProvider) Options {
	return func(o *options) {
		o.timeProvider = tp
	}
}

// WithBuildozerCmd overrides the packaging command.
func WithBuildozerCmd(cmdArgs []string) BuildozerOptions {
	return func(o *buildozerOptions) {
		o.buildozerCmd = cmdArgs
	}
}

// WithHomeDir overrides home directory resolution for the global cache.
func WithHomeDir(homeDir func() (string, error)) BuildozerOptions {
	return func(o *buildozerOptions) {
		o.homeDir = homeDir
	}
}

// WithBuildozerTimeProvider sets the time provider used to mint cache keys.
func WithBuildozerTimeProvider(tp timeProvider) BuildozerOptions {
	return func(o *buildozerOptions) {
		o.timeProvider = tp
	}
}

// WithDeployCmd overrides the Gradle project generation command.
func WithDeployCmd(cmdArgs []string) QtDeployOptions {
	return func(o *qtdeployOptions) {
		o.deployCmd = cmdArgs
	}
}

// WithGradleCmd overrides the package assembly command.
func WithGradleCmd(cmdArgs []string) QtDeployOptions {
	return func(o *qtdeployOptions) {
		o.gradleCmd = cmdArgs
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
