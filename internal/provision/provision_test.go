package provision_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/droidforge/droidforge/internal/provision"
	"github.com/droidforge/droidforge/internal/testutils"
	"github.com/droidforge/droidforge/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureQt(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		hostInstalled    bool
		androidInstalled bool
		aqtFails         bool

		wantInstalls int
		wantErr      bool
	}{
		"Nothing installed runs both installs": {
			wantInstalls: 2,
		},
		"Host installed runs android install only": {
			hostInstalled: true,
			wantInstalls:  1,
		},
		"Everything installed runs nothing": {
			hostInstalled:    true,
			androidInstalled: true,
			wantInstalls:     0,
		},

		// Error cases
		"Installer failure is reported": {
			aqtFails: true,
			wantErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pins := toolchain.DefaultPins()
			qtRoot := t.TempDir()
			locations := toolchain.NewLocations(t.TempDir(), qtRoot, pins)

			if tc.hostInstalled {
				require.NoError(t, os.MkdirAll(locations.QtHost(), 0700), "Setup: failed to create Qt host dir")
			}
			if tc.androidInstalled {
				require.NoError(t, os.MkdirAll(locations.QtAndroid("arm64-v8a"), 0700),
					"Setup: failed to create Qt android dir")
			}

			mode := "ok"
			if tc.aqtFails {
				mode = "error"
			}
			p := provision.New(locations,
				provision.WithAqtCmd(testutils.SetupFakeCmdArgs("TestFakeInstaller", mode)))

			var log bytes.Buffer
			err := p.EnsureQt(context.Background(), &log, "arm64-v8a")
			if tc.wantErr {
				require.Error(t, err, "EnsureQt should return an error")
				return
			}
			require.NoError(t, err, "EnsureQt should not return an error")

			assert.Equal(t, tc.wantInstalls, strings.Count(log.String(), "installer ran"),
				"installer should run once per missing component")
			if tc.wantInstalls > 0 {
				assert.Contains(t, log.String(), pins.QtVersion, "installer should receive the pinned Qt version")
			}
		})
	}
}

func TestEnsureAndroidSDK(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		platformInstalled   bool
		buildToolsInstalled bool
		ndkInstalled        bool
		sdkmanagerFails     bool

		wantPackages []string
		wantErr      bool
	}{
		"Nothing installed requests all components": {
			wantPackages: []string{"platforms;android-33", "build-tools;33.0.2", "ndk;25.1.8937393"},
		},
		"Platform installed requests the rest": {
			platformInstalled: true,
			wantPackages:      []string{"build-tools;33.0.2", "ndk;25.1.8937393"},
		},
		"Everything installed requests nothing": {
			platformInstalled:   true,
			buildToolsInstalled: true,
			ndkInstalled:        true,
		},

		// Error cases
		"Installer failure is reported": {
			sdkmanagerFails: true,
			wantErr:         true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			locations := toolchain.NewLocations(t.TempDir(), t.TempDir(), toolchain.DefaultPins())

			if tc.platformInstalled {
				require.NoError(t, os.MkdirAll(locations.Platform(), 0700), "Setup: failed to create platform dir")
			}
			if tc.buildToolsInstalled {
				require.NoError(t, os.MkdirAll(locations.BuildTools(), 0700), "Setup: failed to create build-tools dir")
			}
			if tc.ndkInstalled {
				require.NoError(t, os.MkdirAll(locations.NDK(), 0700), "Setup: failed to create ndk dir")
			}

			mode := "ok"
			if tc.sdkmanagerFails {
				mode = "error"
			}
			p := provision.New(locations,
				provision.WithSdkmanagerCmd(testutils.SetupFakeCmdArgs("TestFakeInstaller", mode)))

			var log bytes.Buffer
			err := p.EnsureAndroidSDK(context.Background(), &log)
			if tc.wantErr {
				require.Error(t, err, "EnsureAndroidSDK should return an error")
				return
			}
			require.NoError(t, err, "EnsureAndroidSDK should not return an error")

			if len(tc.wantPackages) == 0 {
				assert.NotContains(t, log.String(), "installer ran", "nothing should be installed")
				return
			}
			assert.Contains(t, log.String(), "--licenses", "licenses should be accepted before installing")
			for _, pkg := range tc.wantPackages {
				assert.Contains(t, log.String(), pkg, "installer should receive the missing package")
			}
			for _, pkg := range []string{"platforms;android-33", "build-tools;33.0.2", "ndk;25.1.8937393"} {
				if !slices.Contains(tc.wantPackages, pkg) {
					assert.NotContains(t, log.String(), pkg, "installed components should not be requested again")
				}
			}
		})
	}
}

func TestEnsureBuildozer(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		installed bool
		pipFails  bool

		wantInstall bool
		wantErr     bool
	}{
		"Already installed runs nothing": {
			installed: true,
		},
		"Missing tool is installed": {
			wantInstall: true,
		},

		// Error cases
		"Installer failure is reported": {
			pipFails: true,
			wantErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			locations := toolchain.NewLocations(t.TempDir(), t.TempDir(), toolchain.DefaultPins())

			mode := "ok"
			if tc.pipFails {
				mode = "error"
			}
			lookPath := func(string) (string, error) { return "", fmt.Errorf("not found") }
			if tc.installed {
				lookPath = func(string) (string, error) { return "/usr/bin/buildozer", nil }
			}

			p := provision.New(locations,
				provision.WithPipCmd(testutils.SetupFakeCmdArgs("TestFakeInstaller", mode)),
				provision.WithLookPath(lookPath))

			var log bytes.Buffer
			err := p.EnsureBuildozer(context.Background(), &log)
			if tc.wantErr {
				require.Error(t, err, "EnsureBuildozer should return an error")
				return
			}
			require.NoError(t, err, "EnsureBuildozer should not return an error")

			if tc.wantInstall {
				assert.Contains(t, log.String(), "buildozer", "installer should receive the package name")
				return
			}
			assert.NotContains(t, log.String(), "installer ran", "nothing should be installed")
		})
	}
}

func TestEnsurePythonDeps(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		installed bool
		pipFails  bool

		wantInstall bool
		wantErr     bool
	}{
		"Already installed runs nothing": {
			installed: true,
		},
		"Missing tools are installed": {
			wantInstall: true,
		},

		// Error cases
		"Installer failure is reported": {
			pipFails: true,
			wantErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pins := toolchain.DefaultPins()
			locations := toolchain.NewLocations(t.TempDir(), t.TempDir(), pins)

			mode := "ok"
			if tc.pipFails {
				mode = "error"
			}
			lookPath := func(string) (string, error) { return "", fmt.Errorf("not found") }
			if tc.installed {
				lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
			}

			p := provision.New(locations,
				provision.WithPipCmd(testutils.SetupFakeCmdArgs("TestFakeInstaller", mode)),
				provision.WithLookPath(lookPath))

			var log bytes.Buffer
			err := p.EnsurePythonDeps(context.Background(), &log)
			if tc.wantErr {
				require.Error(t, err, "EnsurePythonDeps should return an error")
				return
			}
			require.NoError(t, err, "EnsurePythonDeps should not return an error")

			if tc.wantInstall {
				assert.Contains(t, log.String(), "pyside6=="+pins.QtVersion,
					"installer should receive the pinned pyside6 release")
				return
			}
			assert.NotContains(t, log.String(), "installer ran", "nothing should be installed")
		})
	}
}

func TestFakeInstaller(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	switch args[0] {
	case "ok":
		fmt.Printf("installer ran: %s\n", strings.Join(args[1:], " "))
	case "error":
		fmt.Fprintln(os.Stderr, "installer exploded")
		os.Exit(1)
	}
}
