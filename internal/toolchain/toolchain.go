// Package toolchain pins the Android build tool versions and resolves where
// they live on disk.
//
// Pins default to the versions the pipelines are known to work with and can be
// overridden per machine through a small TOML file. Locations derive every
// tool path from an SDK root and a Qt root so that the pipelines, the
// provisioner and the descriptor patcher all agree on the same layout.
package toolchain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"
)

// Pins are the tool versions a pipeline provisions and builds against.
type Pins struct {
	JavaMajor       int    `toml:"java_major"`
	PythonSeries    string `toml:"python_series"`
	QtVersion       string `toml:"qt_version"`
	AndroidPlatform string `toml:"android_platform"`
	BuildTools      string `toml:"build_tools"`
	NDK             string `toml:"ndk"`
}

// DefaultPins returns the tool versions used when no override file is present.
func DefaultPins() Pins {
	return Pins{
		JavaMajor:       17,
		PythonSeries:    "3.11",
		QtVersion:       "6.5.0",
		AndroidPlatform: "33",
		BuildTools:      "33.0.2",
		NDK:             "25.1.8937393",
	}
}

var (
	versionRegex = regexp.MustCompile(`^\d+(\.\d+)*$`)
	numberRegex  = regexp.MustCompile(`^\d+$`)
)

// LoadPins reads pin overrides from the TOML file at path.
// Fields the file does not set keep their default values, and a missing file
// yields the defaults.
func LoadPins(path string) (p Pins, err error) {
	defer decorate.OnError(&err, "could not load toolchain pins from %s", path)

	p = DefaultPins()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPins(), nil
		}
		return Pins{}, err
	}

	if err := p.Validate(); err != nil {
		return Pins{}, err
	}
	return p, nil
}

// Validate checks that every pin parses as a version of the expected shape.
func (p Pins) Validate() error {
	var errs error

	if p.JavaMajor <= 0 {
		errs = errors.Join(errs, fmt.Errorf("java_major must be positive, got %d", p.JavaMajor))
	}
	checks := []struct {
		name  string
		value string
		regex *regexp.Regexp
	}{
		{"python_series", p.PythonSeries, versionRegex},
		{"qt_version", p.QtVersion, versionRegex},
		{"android_platform", p.AndroidPlatform, numberRegex},
		{"build_tools", p.BuildTools, versionRegex},
		{"ndk", p.NDK, versionRegex},
	}
	for _, c := range checks {
		if !c.regex.MatchString(c.value) {
			errs = errors.Join(errs, fmt.Errorf("%s is not a valid version: %q", c.name, c.value))
		}
	}

	return errs
}

// ResolveSDKRoot returns the Android SDK location, preferring explicit
// configuration over the conventional environment variables.
func ResolveSDKRoot(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	for _, key := range []string{"ANDROID_SDK_ROOT", "ANDROID_HOME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", errors.New("Android SDK location unknown: set ANDROID_SDK_ROOT or ANDROID_HOME, or configure sdk-root")
}

// Locations resolves tool paths under an SDK root and a Qt root for a given
// set of pins.
type Locations struct {
	sdkRoot string
	qtRoot  string
	pins    Pins
}

// NewLocations returns the tool locations for the given roots and pins.
func NewLocations(sdkRoot, qtRoot string, pins Pins) Locations {
	return Locations{sdkRoot: sdkRoot, qtRoot: qtRoot, pins: pins}
}

// SDKRoot returns the Android SDK root directory.
func (l Locations) SDKRoot() string {
	return l.sdkRoot
}

// QtRoot returns the Qt installation root directory.
func (l Locations) QtRoot() string {
	return l.qtRoot
}

// Pins returns the pins the locations were derived from.
func (l Locations) Pins() Pins {
	return l.pins
}

// NDK returns the pinned NDK directory.
func (l Locations) NDK() string {
	return filepath.Join(l.sdkRoot, "ndk", l.pins.NDK)
}

// BuildTools returns the pinned build-tools directory.
func (l Locations) BuildTools() string {
	return filepath.Join(l.sdkRoot, "build-tools", l.pins.BuildTools)
}

// Platform returns the pinned platform directory.
func (l Locations) Platform() string {
	return filepath.Join(l.sdkRoot, "platforms", "android-"+l.pins.AndroidPlatform)
}

// Sdkmanager returns the path of the sdkmanager executable.
func (l Locations) Sdkmanager() string {
	name := "sdkmanager"
	if runtime.GOOS == "windows" {
		name += ".bat"
	}
	return filepath.Join(l.sdkRoot, "cmdline-tools", "latest", "bin", name)
}

// QtHost returns the Qt host tools directory for the pinned Qt version.
func (l Locations) QtHost() string {
	arch := "gcc_64"
	switch runtime.GOOS {
	case "darwin":
		arch = "macos"
	case "windows":
		arch = "mingw_64"
	}
	return filepath.Join(l.qtRoot, l.pins.QtVersion, arch)
}

// QtAndroid returns the Qt Android libraries directory for the pinned Qt
// version and the given target architecture.
func (l Locations) QtAndroid(arch string) string {
	return filepath.Join(l.qtRoot, l.pins.QtVersion, "android_"+normalizeArch(arch))
}

// AndroidDeployQt returns the path of the androiddeployqt executable.
func (l Locations) AndroidDeployQt() string {
	name := "androiddeployqt"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(l.QtHost(), "bin", name)
}

// Environ returns the environment variables the packaging tools expect,
// pointing them at the resolved locations.
func (l Locations) Environ() []string {
	return []string{
		"ANDROID_SDK_ROOT=" + l.sdkRoot,
		"ANDROID_HOME=" + l.sdkRoot,
		"ANDROID_NDK_ROOT=" + l.NDK(),
		"ANDROID_NDK_HOME=" + l.NDK(),
		"QT_HOST_PATH=" + l.QtHost(),
	}
}

// normalizeArch maps Android ABI names to the Qt directory naming scheme.
func normalizeArch(arch string) string {
	switch arch {
	case "arm64-v8a":
		return "arm64_v8a"
	case "armeabi-v7a":
		return "armv7"
	default:
		return arch
	}
}
