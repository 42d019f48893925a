package cmdutils

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// RunStreamed executes the command specified by cmd with arguments args, streaming
// combined stdout and stderr to w as the command runs.
// The command executes in dir, with env appended to the inherited environment.
func RunStreamed(ctx context.Context, w io.Writer, dir string, env []string, cmd string, args ...string) error {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	c.Stdout = w
	c.Stderr = w
	c.Env = append(c.Env, "LANG=C")
	c.Env = append(c.Env, os.Environ()...)
	c.Env = append(c.Env, env...)

	return c.Run()
}

// ExitCode extracts the process exit code from err.
// It returns 0 when err is nil, and -1 when the command never ran to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
