package toolchain

// WithJavaCmd overrides the command used to query the Java runtime version.
func WithJavaCmd(cmdArgs []string) Options {
	return func(o *options) {
		o.javaCmd = cmdArgs
	}
}

// WithPythonCmd overrides the command used to query the Python interpreter version.
func WithPythonCmd(cmdArgs []string) Options {
	return func(o *options) {
		o.pythonCmd = cmdArgs
	}
}
