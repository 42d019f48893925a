// Package testutils provides helper functions for testing
package testutils

import (
	"fmt"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// CmdTestCase is a test case for testing cobra CMD flags.
type CmdTestCase struct {
	Name           string
	Short          string
	Required       bool
	Dirname        bool
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper is a helper function to test cobra CMD flags.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()
	var flag *pflag.Flag

	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.Flags().Lookup(testCase.Name)
	}
	assert.NotNil(t, flag)
	assert.Equal(t, testCase.Short, flag.Shorthand)

	if testCase.Required {
		assert.Equal(t, "true", flag.Annotations[cobra.BashCompOneRequiredFlag][0])
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompOneRequiredFlag])
	}

	if testCase.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir])
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir])
	}
}

// SetupFakeCmdArgs returns the argument slice which re-executes the current test
// binary, running only the fake command helper test named testName.
// Arguments for the fake command are passed after a "--" separator.
func SetupFakeCmdArgs(testName string, args ...string) []string {
	cmdArgs := []string{os.Args[0], "-test.run=^" + testName + "$", "--"}
	return append(cmdArgs, args...)
}

// GetFakeCmdArgs returns the arguments passed to a fake command helper test.
// It returns an error when the current process is a regular test run, so helper
// tests can return early instead of executing their fake behavior.
func GetFakeCmdArgs() ([]string, error) {
	for i, arg := range os.Args {
		if arg == "--" {
			if i+1 >= len(os.Args) {
				return nil, fmt.Errorf("no arguments after separator")
			}
			return os.Args[i+1:], nil
		}
	}
	return nil, fmt.Errorf("not a fake command execution")
}
