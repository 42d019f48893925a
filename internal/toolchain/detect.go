package toolchain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/droidforge/droidforge/internal/cmdutils"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type options struct {
	javaCmd   []string
	pythonCmd []string
}

// Options is the function signature used to tweak the detector.
type Options func(*options)

// Detector probes the host for the tool versions the pipelines depend on.
type Detector struct {
	pins Pins
	opts options
}

// NewDetector returns a detector for the given pins.
func NewDetector(pins Pins, args ...Options) Detector {
	opts := options{
		javaCmd:   []string{"java", "-version"},
		pythonCmd: []string{"python3", "--version"},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Detector{pins: pins, opts: opts}
}

// javaVersionRegex matches the quoted version in `java -version` output.
// For example: `openjdk version "17.0.8" 2023-07-18` has "17.0.8".
var javaVersionRegex = regexp.MustCompile(`version "([0-9]+)(?:\.([0-9]+))?[^"]*"`)

// JavaVersion returns the major version of the Java runtime on the host.
func (d Detector) JavaVersion(ctx context.Context) (int, error) {
	// java -version historically reports on stderr.
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, 15*time.Second, d.opts.javaCmd[0], d.opts.javaCmd[1:]...)
	if err != nil {
		return 0, fmt.Errorf("could not run %v: %w", d.opts.javaCmd, err)
	}

	out, err := decodeOutput(io.MultiReader(stderr, stdout))
	if err != nil {
		return 0, fmt.Errorf("could not decode java version output: %w", err)
	}

	matches := javaVersionRegex.FindStringSubmatch(out)
	if matches == nil {
		return 0, fmt.Errorf("could not find a version in java output: %q", strings.TrimSpace(out))
	}

	major, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("could not parse java major version: %w", err)
	}
	// Pre-9 runtimes report as 1.major.
	if major == 1 && matches[2] != "" {
		if major, err = strconv.Atoi(matches[2]); err != nil {
			return 0, fmt.Errorf("could not parse java major version: %w", err)
		}
	}

	return major, nil
}

// PythonVersion returns the version of the Python interpreter on the host.
func (d Detector) PythonVersion(ctx context.Context) (string, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, 15*time.Second, d.opts.pythonCmd[0], d.opts.pythonCmd[1:]...)
	if err != nil {
		return "", fmt.Errorf("could not run %v: %w", d.opts.pythonCmd, err)
	}

	out, err := decodeOutput(io.MultiReader(stdout, stderr))
	if err != nil {
		return "", fmt.Errorf("could not decode python version output: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "Python" {
		return "", fmt.Errorf("unexpected python version output: %q", strings.TrimSpace(out))
	}

	return fields[1], nil
}

// CheckJava verifies that the host Java runtime matches the pinned major
// version.
func (d Detector) CheckJava(ctx context.Context) error {
	major, err := d.JavaVersion(ctx)
	if err != nil {
		return err
	}

	if major != d.pins.JavaMajor {
		return fmt.Errorf("java %d is required, found %d", d.pins.JavaMajor, major)
	}
	slog.Debug("Java runtime matches pin", "major", major)
	return nil
}

// CheckPython verifies that the host Python interpreter belongs to the pinned
// series.
func (d Detector) CheckPython(ctx context.Context) error {
	version, err := d.PythonVersion(ctx)
	if err != nil {
		return err
	}

	if version != d.pins.PythonSeries && !strings.HasPrefix(version, d.pins.PythonSeries+".") {
		return fmt.Errorf("python %s is required, found %s", d.pins.PythonSeries, version)
	}
	slog.Debug("Python interpreter matches pin", "version", version)
	return nil
}

// decodeOutput reads r tolerating a UTF-16 byte order mark, which some tools
// emit on Windows.
func decodeOutput(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder().Transformer)
	data, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
