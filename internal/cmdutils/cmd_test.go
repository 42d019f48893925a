package cmdutils_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/droidforge/droidforge/internal/cmdutils"
	"github.com/droidforge/droidforge/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args []string

		wantStdout string
		wantStderr string
		wantErr    bool
	}{
		"Captures stdout": {
			args:       []string{"ok"},
			wantStdout: "tool output",
		},
		"Captures stderr": {
			args:       []string{"stderr"},
			wantStderr: "tool error",
		},

		// Error cases
		"Non-zero exit": {
			args:       []string{"exit 1"},
			wantStderr: "boom",
			wantErr:    true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeTool", tc.args...)
			stdout, stderr, err := cmdutils.Run(context.Background(), cmdArgs[0], cmdArgs[1:]...)
			if tc.wantErr {
				require.Error(t, err, "Run should return an error")
			} else {
				require.NoError(t, err, "Run should not return an error")
			}

			if tc.wantStdout != "" {
				assert.Contains(t, stdout.String(), tc.wantStdout, "stdout should contain expected output")
			}
			if tc.wantStderr != "" {
				assert.Contains(t, stderr.String(), tc.wantStderr, "stderr should contain expected output")
			}
		})
	}
}

func TestRunWithTimeout(t *testing.T) {
	t.Parallel()

	cmdArgs := testutils.SetupFakeCmdArgs("TestFakeTool", "sleep")
	_, _, err := cmdutils.RunWithTimeout(context.Background(), 100*time.Millisecond, cmdArgs[0], cmdArgs[1:]...)
	require.Error(t, err, "RunWithTimeout should return an error when the command outlives the timeout")
}

func TestRunStreamed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args []string
		env  []string

		wantOutput   string
		wantExitCode int
	}{
		"Streams combined output": {
			args:       []string{"combined"},
			wantOutput: "tool output\ntool error",
		},
		"Threads environment": {
			args:       []string{"env"},
			env:        []string{"FORGE_TEST_ENV=threaded"},
			wantOutput: "threaded",
		},
		"Runs in requested directory": {
			args:       []string{"pwd"},
			wantOutput: "streamdir",
		},

		// Error cases
		"Propagates exit code": {
			args:         []string{"exit 1"},
			wantOutput:   "boom",
			wantExitCode: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "streamdir")
			require.NoError(t, os.Mkdir(dir, 0700), "Setup: failed to create working directory")

			var buf bytes.Buffer
			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeTool", tc.args...)
			err := cmdutils.RunStreamed(context.Background(), &buf, dir, tc.env, cmdArgs[0], cmdArgs[1:]...)

			assert.Equal(t, tc.wantExitCode, cmdutils.ExitCode(err), "exit code should match")
			assert.Contains(t, buf.String(), tc.wantOutput, "streamed output should contain expected text")
		})
	}
}

func TestExitCodeOnNonExecError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, cmdutils.ExitCode(fmt.Errorf("not an exec error")), "non exec errors should map to -1")
	assert.Equal(t, 0, cmdutils.ExitCode(nil), "nil error should map to 0")
}

func TestFakeTool(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	switch args[0] {
	case "ok":
		fmt.Println("tool output")
	case "stderr":
		fmt.Fprintln(os.Stderr, "tool error")
	case "combined":
		fmt.Println("tool output")
		fmt.Fprintln(os.Stderr, "tool error")
	case "env":
		fmt.Println(os.Getenv("FORGE_TEST_ENV"))
	case "pwd":
		wd, err := os.Getwd()
		if err != nil {
			os.Exit(1)
		}
		fmt.Println(wd)
	case "sleep":
		time.Sleep(10 * time.Second)
	case "exit 1":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(1)
	}
}
