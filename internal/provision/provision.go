// Package provision installs the pinned build tools a pipeline depends on.
//
// Every Ensure method is idempotent: it probes for the tool first and only
// installs what is missing, so warm runs cost a handful of stat calls.
// Installation output streams to the run's build log.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/droidforge/droidforge/internal/cmdutils"
	"github.com/droidforge/droidforge/internal/toolchain"
	"github.com/ubuntu/decorate"
)

type options struct {
	aqtCmd        []string
	sdkmanagerCmd []string
	pipCmd        []string
	lookPath      func(string) (string, error)
}

// Options is the function signature used to tweak the provisioner.
type Options func(*options)

// Provisioner installs the pinned toolchain components.
type Provisioner struct {
	locations toolchain.Locations
	pins      toolchain.Pins
	opts      options
}

// New returns a provisioner for the given tool locations.
func New(locations toolchain.Locations, args ...Options) Provisioner {
	opts := options{
		aqtCmd:   []string{"python3", "-m", "aqt"},
		pipCmd:   []string{"python3", "-m", "pip"},
		lookPath: exec.LookPath,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Provisioner{
		locations: locations,
		pins:      locations.Pins(),
		opts:      opts,
	}
}

// EnsurePythonDeps installs the Python packages driving Qt deployments,
// aqtinstall and the pyside6 release matching the pinned Qt version, when
// they are absent.
func (p Provisioner) EnsurePythonDeps(ctx context.Context, w io.Writer) (err error) {
	defer decorate.OnError(&err, "could not provision Python deployment tools")

	_, aqtErr := p.opts.lookPath("aqt")
	_, deployErr := p.opts.lookPath("pyside6-android-deploy")
	if aqtErr == nil && deployErr == nil {
		slog.Debug("Python deployment tools already installed")
		return nil
	}

	slog.Info("Installing Python deployment tools", "pyside6", p.pins.QtVersion)
	cmdArgs := append(append([]string{}, p.opts.pipCmd...),
		"install", "--user", "--upgrade", "aqtinstall", "pyside6=="+p.pins.QtVersion)
	if err := cmdutils.RunStreamed(ctx, w, "", nil, cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}

	return nil
}

// EnsureQt installs the pinned Qt host tools and the Android libraries for
// arch when they are absent.
func (p Provisioner) EnsureQt(ctx context.Context, w io.Writer, arch string) (err error) {
	defer decorate.OnError(&err, "could not provision Qt %s", p.pins.QtVersion)

	host := aqtHost()

	targets := []struct {
		dir  string
		args []string
	}{
		{
			dir:  p.locations.QtHost(),
			args: []string{"install-qt", host, "desktop", p.pins.QtVersion, "--outputdir", p.locations.QtRoot()},
		},
		{
			dir: p.locations.QtAndroid(arch),
			args: []string{"install-qt", host, "android", p.pins.QtVersion, "--arch", qtAndroidArch(arch),
				"--outputdir", p.locations.QtRoot()},
		},
	}

	for _, target := range targets {
		if dirExists(target.dir) {
			slog.Debug("Qt component already installed", "dir", target.dir)
			continue
		}

		slog.Info("Installing Qt component", "dir", target.dir)
		cmdArgs := append(append([]string{}, p.opts.aqtCmd...), target.args...)
		if err := cmdutils.RunStreamed(ctx, w, "", nil, cmdArgs[0], cmdArgs[1:]...); err != nil {
			return fmt.Errorf("%v failed: %w", cmdArgs, err)
		}
	}

	return nil
}

// EnsureAndroidSDK installs the pinned platform, build-tools and NDK when
// they are absent.
func (p Provisioner) EnsureAndroidSDK(ctx context.Context, w io.Writer) (err error) {
	defer decorate.OnError(&err, "could not provision Android SDK components")

	components := []struct {
		dir string
		pkg string
	}{
		{p.locations.Platform(), "platforms;android-" + p.pins.AndroidPlatform},
		{p.locations.BuildTools(), "build-tools;" + p.pins.BuildTools},
		{p.locations.NDK(), "ndk;" + p.pins.NDK},
	}

	var missing []string
	for _, c := range components {
		if dirExists(c.dir) {
			slog.Debug("Android SDK component already installed", "dir", c.dir)
			continue
		}
		missing = append(missing, c.pkg)
	}
	if len(missing) == 0 {
		return nil
	}

	base := p.opts.sdkmanagerCmd
	if base == nil {
		base = []string{p.locations.Sdkmanager()}
	}

	slog.Info("Accepting Android SDK licenses")
	if err := p.acceptLicenses(ctx, w, base); err != nil {
		return fmt.Errorf("license acceptance failed: %w", err)
	}

	slog.Info("Installing Android SDK components", "packages", missing)
	cmdArgs := append(append([]string{}, base...), "--sdk_root="+p.locations.SDKRoot())
	cmdArgs = append(cmdArgs, missing...)
	if err := cmdutils.RunStreamed(ctx, w, "", nil, cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}

	return nil
}

// acceptLicenses feeds agreement answers to sdkmanager so component installs
// do not stall on an interactive prompt.
func (p Provisioner) acceptLicenses(ctx context.Context, w io.Writer, base []string) error {
	cmdArgs := append(append([]string{}, base...), "--sdk_root="+p.locations.SDKRoot(), "--licenses")

	c := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)
	c.Stdin = strings.NewReader(strings.Repeat("y\n", 64))
	c.Stdout = w
	c.Stderr = w
	return c.Run()
}

// EnsureBuildozer installs the Buildozer packaging tool when it is absent.
func (p Provisioner) EnsureBuildozer(ctx context.Context, w io.Writer) (err error) {
	defer decorate.OnError(&err, "could not provision Buildozer")

	if _, err := p.opts.lookPath("buildozer"); err == nil {
		slog.Debug("Buildozer already installed")
		return nil
	}

	slog.Info("Installing Buildozer")
	cmdArgs := append(append([]string{}, p.opts.pipCmd...), "install", "--user", "--upgrade", "buildozer", "Cython")
	if err := cmdutils.RunStreamed(ctx, w, "", nil, cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}

	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// aqtHost maps the runtime OS to the aqt host naming scheme.
func aqtHost() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// qtAndroidArch maps Android ABI names to the aqt arch naming scheme.
func qtAndroidArch(arch string) string {
	switch arch {
	case "arm64-v8a":
		return "android_arm64_v8a"
	case "armeabi-v7a":
		return "android_armv7"
	case "x86":
		return "android_x86"
	case "x86_64":
		return "android_x86_64"
	default:
		return arch
	}
}
