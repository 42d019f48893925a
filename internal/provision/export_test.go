package provision

// WithAqtCmd overrides the command used to install Qt components.
func WithAqtCmd(cmdArgs []string) Options {
	return func(o *options) {
		o.aqtCmd = cmdArgs
	}
}

// WithSdkmanagerCmd overrides the command used to install Android SDK components.
func WithSdkmanagerCmd(cmdArgs []string) Options {
	return func(o *options) {
		o.sdkmanagerCmd = cmdArgs
	}
}

// WithPipCmd overrides the command used to install Python packages.
func WithPipCmd(cmdArgs []string) Options {
	return func(o *options) {
		o.pipCmd = cmdArgs
	}
}

// WithLookPath overrides executable discovery.
func WithLookPath(lookPath func(string) (string, error)) Options {
	return func(o *options) {
		o.lookPath = lookPath
	}
}
