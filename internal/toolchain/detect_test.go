package toolchain_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/droidforge/droidforge/internal/testutils"
	"github.com/droidforge/droidforge/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJavaVersion(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		javaOutput string

		want    int
		wantErr bool
	}{
		"OpenJDK 17": {
			javaOutput: "openjdk 17",
			want:       17,
		},
		"OpenJDK 21": {
			javaOutput: "openjdk 21",
			want:       21,
		},
		"Legacy 1.8 runtime": {
			javaOutput: "legacy 8",
			want:       8,
		},

		// Error cases
		"Garbage output": {
			javaOutput: "garbage",
			wantErr:    true,
		},
		"Command fails": {
			javaOutput: "error",
			wantErr:    true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeJava", tc.javaOutput)
			d := toolchain.NewDetector(toolchain.DefaultPins(), toolchain.WithJavaCmd(cmdArgs))

			got, err := d.JavaVersion(context.Background())
			if tc.wantErr {
				require.Error(t, err, "JavaVersion should return an error")
				return
			}
			require.NoError(t, err, "JavaVersion should not return an error")
			assert.Equal(t, tc.want, got, "major version should match")
		})
	}
}

func TestPythonVersion(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		pythonOutput string

		want    string
		wantErr bool
	}{
		"CPython 3.11": {
			pythonOutput: "3.11",
			want:         "3.11.4",
		},

		// Error cases
		"Garbage output": {
			pythonOutput: "garbage",
			wantErr:      true,
		},
		"Command fails": {
			pythonOutput: "error",
			wantErr:      true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmdArgs := testutils.SetupFakeCmdArgs("TestFakePython", tc.pythonOutput)
			d := toolchain.NewDetector(toolchain.DefaultPins(), toolchain.WithPythonCmd(cmdArgs))

			got, err := d.PythonVersion(context.Background())
			if tc.wantErr {
				require.Error(t, err, "PythonVersion should return an error")
				return
			}
			require.NoError(t, err, "PythonVersion should not return an error")
			assert.Equal(t, tc.want, got, "version should match")
		})
	}
}

func TestCheckJava(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		javaOutput string

		wantErr bool
	}{
		"Matching major version": {
			javaOutput: "openjdk 17",
		},

		// Error cases
		"Mismatched major version": {
			javaOutput: "openjdk 21",
			wantErr:    true,
		},
		"Missing runtime": {
			javaOutput: "error",
			wantErr:    true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeJava", tc.javaOutput)
			d := toolchain.NewDetector(toolchain.DefaultPins(), toolchain.WithJavaCmd(cmdArgs))

			err := d.CheckJava(context.Background())
			if tc.wantErr {
				require.Error(t, err, "CheckJava should return an error")
				return
			}
			require.NoError(t, err, "CheckJava should not return an error")
		})
	}
}

func TestCheckPython(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		pythonOutput string

		wantErr bool
	}{
		"Interpreter in pinned series": {
			pythonOutput: "3.11",
		},

		// Error cases
		"Interpreter outside pinned series": {
			pythonOutput: "3.12",
			wantErr:      true,
		},
		"Missing interpreter": {
			pythonOutput: "error",
			wantErr:      true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmdArgs := testutils.SetupFakeCmdArgs("TestFakePython", tc.pythonOutput)
			d := toolchain.NewDetector(toolchain.DefaultPins(), toolchain.WithPythonCmd(cmdArgs))

			err := d.CheckPython(context.Background())
			if tc.wantErr {
				require.Error(t, err, "CheckPython should return an error")
				return
			}
			require.NoError(t, err, "CheckPython should not return an error")
		})
	}
}

func TestFakeJava(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	// java reports its version on stderr.
	switch args[0] {
	case "openjdk 17":
		fmt.Fprintln(os.Stderr, `openjdk version "17.0.8" 2023-07-18`)
		fmt.Fprintln(os.Stderr, `OpenJDK Runtime Environment (build 17.0.8+7)`)
	case "openjdk 21":
		fmt.Fprintln(os.Stderr, `openjdk version "21.0.2" 2024-01-16`)
	case "legacy 8":
		fmt.Fprintln(os.Stderr, `java version "1.8.0_392"`)
	case "garbage":
		fmt.Fprintln(os.Stderr, "no version here")
	case "error":
		fmt.Fprintln(os.Stderr, "java: command not found")
		os.Exit(127)
	}
}

func TestFakePython(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	switch args[0] {
	case "3.11":
		fmt.Println("Python 3.11.4")
	case "3.12":
		fmt.Println("Python 3.12.1")
	case "garbage":
		fmt.Println("not a python banner")
	case "error":
		fmt.Fprintln(os.Stderr, "python3: command not found")
		os.Exit(127)
	}
}
