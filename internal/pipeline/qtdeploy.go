package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/buildspec"
	"github.com/droidforge/droidforge/internal/cmdutils"
	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/droidforge/droidforge/internal/toolchain"
)

const (
	// gradleProjectDir is where the deployment tool generates the Gradle
	// project wrapping the application.
	gradleProjectDir = "build-android"

	// deploySettingsName is the resolved copy of the deployment descriptor
	// handed to the deployment tool, with toolchain locations filled in.
	deploySettingsName = "android-deployment-settings.json"
)

// checker verifies the host tool versions against the pins.
type checker interface {
	CheckJava(ctx context.Context) error
	CheckPython(ctx context.Context) error
}

// toolchainInstaller provisions the pinned Qt and Android components.
type toolchainInstaller interface {
	EnsurePythonDeps(ctx context.Context, w io.Writer) error
	EnsureQt(ctx context.Context, w io.Writer, arch string) error
	EnsureAndroidSDK(ctx context.Context, w io.Writer) error
}

type qtdeployOptions struct {
	deployCmd []string
	gradleCmd []string
}

// QtDeployOptions is the function signature used to tweak the Qt pipeline.
type QtDeployOptions func(*qtdeployOptions)

// QtDeploy drives the Qt for Python packaging pipeline: it provisions the
// pinned toolchain, generates a Gradle project from the deployment
// descriptor and assembles the debug package.
type QtDeploy struct {
	locations toolchain.Locations
	check     checker
	installer toolchainInstaller
	opts      qtdeployOptions

	desc         buildspec.QtDeploy
	settingsPath string
}

// NewQtDeploy assembles the Qt pipeline over the given tool locations,
// version checker and toolchain installer.
func NewQtDeploy(locations toolchain.Locations, check checker, installer toolchainInstaller, args ...QtDeployOptions) *QtDeploy {
	opts := qtdeployOptions{}
	for _, opt := range args {
		opt(&opts)
	}

	return &QtDeploy{locations: locations, check: check, installer: installer, opts: opts}
}

// Name returns the pipeline name.
func (q *QtDeploy) Name() string {
	return constants.PipelineQtDeploy
}

// Steps returns the pipeline's step list in execution order. The descriptor
// is validated first so a malformed project fails before any Android tooling
// is provisioned or run.
func (q *QtDeploy) Steps() []Step {
	return []Step{
		{Name: "validate deployment descriptor", Run: q.validateDescriptor},
		{Name: "check java", Run: q.checkJava},
		{Name: "check python", Run: q.checkPython},
		{Name: "provision deployment tools", Run: q.provisionPythonDeps},
		{Name: "provision qt", Run: q.provisionQt},
		{Name: "provision android sdk", Run: q.provisionAndroidSDK},
		{Name: "resolve deployment descriptor", Run: q.resolveDescriptor},
		{Name: "generate gradle project", Run: q.generateProject},
		{Name: "verify gradle wrapper", Run: q.verifyGradleWrapper},
		{Name: "assemble debug package", Run: q.assembleDebug},
		{Name: "collect artifacts", Run: q.collectArtifacts},
	}
}

func (q *QtDeploy) validateDescriptor(_ context.Context, r *Run) error {
	desc, err := buildspec.LoadQtDeploy(filepath.Join(r.ProjectDir, constants.QtDeployDescriptorFile))
	if err != nil {
		return err
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	q.desc = desc

	if _, err := os.Stat(filepath.Join(r.ProjectDir, "data", "icon.png")); err != nil {
		slog.Warn("Project ships no icon, the stock Android icon will be used", "project", r.ProjectDir)
	}

	slog.Info("Deployment descriptor is valid",
		"binary", desc.ApplicationBinary, "architectures", desc.Architectures)
	return nil
}

func (q *QtDeploy) checkJava(ctx context.Context, _ *Run) error {
	return q.check.CheckJava(ctx)
}

func (q *QtDeploy) checkPython(ctx context.Context, _ *Run) error {
	return q.check.CheckPython(ctx)
}

func (q *QtDeploy) provisionPythonDeps(ctx context.Context, r *Run) error {
	return q.installer.EnsurePythonDeps(ctx, r.Log)
}

func (q *QtDeploy) provisionQt(ctx context.Context, r *Run) error {
	for _, arch := range q.desc.Architectures {
		if err := q.installer.EnsureQt(ctx, r.Log, arch); err != nil {
			return err
		}
	}
	return nil
}

func (q *QtDeploy) provisionAndroidSDK(ctx context.Context, r *Run) error {
	return q.installer.EnsureAndroidSDK(ctx, r.Log)
}

// resolveDescriptor writes a copy of the descriptor with the toolchain
// locations filled in, leaving the authored file untouched.
func (q *QtDeploy) resolveDescriptor(_ context.Context, r *Run) error {
	data, err := os.ReadFile(q.desc.Path)
	if err != nil {
		return err
	}

	patched, err := buildspec.PatchDescriptor(data, buildspec.ToolchainPaths{
		Qt:            q.locations.QtAndroid(q.desc.Architectures[0]),
		SDK:           q.locations.SDKRoot(),
		NDK:           q.locations.NDK(),
		SDKBuildTools: q.locations.Pins().BuildTools,
	})
	if err != nil {
		return err
	}

	q.settingsPath = filepath.Join(r.ProjectDir, deploySettingsName)
	return fileutils.AtomicWrite(q.settingsPath, patched)
}

func (q *QtDeploy) generateProject(ctx context.Context, r *Run) error {
	cmdArgs := q.opts.deployCmd
	if cmdArgs == nil {
		cmdArgs = []string{q.locations.AndroidDeployQt()}
	}
	cmdArgs = append(append([]string{}, cmdArgs...),
		"--input", q.settingsPath,
		"--output", filepath.Join(r.ProjectDir, gradleProjectDir),
		"--android-platform", "android-"+q.locations.Pins().AndroidPlatform,
		"--gradle")

	if err := cmdutils.RunStreamed(ctx, r.Log, r.ProjectDir, q.env(r), cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}
	return nil
}

// verifyGradleWrapper asserts the deployment tool actually generated a
// Gradle project. Skipping the assembly silently would report a successful
// run with no package.
func (q *QtDeploy) verifyGradleWrapper(_ context.Context, r *Run) error {
	wrapper := filepath.Join(r.ProjectDir, gradleProjectDir, "gradlew")
	if _, err := os.Stat(wrapper); err != nil {
		return fmt.Errorf("gradle wrapper %s is missing, the deployment tool did not generate a Gradle project: %w", wrapper, err)
	}

	// Some generator versions drop the executable bit.
	return os.Chmod(wrapper, 0755)
}

func (q *QtDeploy) assembleDebug(ctx context.Context, r *Run) error {
	dir := filepath.Join(r.ProjectDir, gradleProjectDir)
	cmdArgs := q.opts.gradleCmd
	if cmdArgs == nil {
		cmdArgs = []string{filepath.Join(dir, "gradlew")}
	}
	cmdArgs = append(append([]string{}, cmdArgs...), "assembleDebug")

	if err := cmdutils.RunStreamed(ctx, r.Log, dir, q.env(r), cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}
	return nil
}

// collectArtifacts copies every assembled package next to the run report.
// At least one package must exist for the run to succeed.
func (q *QtDeploy) collectArtifacts(_ context.Context, r *Run) error {
	patterns := []string{
		filepath.Join(gradleProjectDir, "build", "outputs", "apk", "*", "*"+constants.ArtifactExtension),
		filepath.Join(gradleProjectDir, "*"+constants.ArtifactExtension),
	}
	artifacts, err := artifact.Collect(r.ProjectDir, patterns, 1, 0, r.ArtifactsDir)
	if err != nil {
		return err
	}

	r.Artifacts = artifacts
	return nil
}

// env merges the resolved toolchain locations into the run's environment.
// Variables from the run come last so operator overrides win.
func (q *QtDeploy) env(r *Run) []string {
	return append(append([]string{}, q.locations.Environ()...), r.Env...)
}
