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
	"github.com/droidforge/droidforge/internal/cache"
	"github.com/droidforge/droidforge/internal/cmdutils"
	"github.com/droidforge/droidforge/internal/constants"
)

const (
	// buildozerWorkDir is the tool state directory Buildozer maintains, both
	// in the project and in the user's home directory.
	buildozerWorkDir = ".buildozer"

	// buildozerBinDir is where Buildozer drops the packaged binaries.
	buildozerBinDir = "bin"

	scopeBuildozerLocal  = "buildozer-local"
	scopeBuildozerGlobal = "buildozer-global"
)

// toolInstaller installs the packaging tool when it is missing.
type toolInstaller interface {
	EnsureBuildozer(ctx context.Context, w io.Writer) error
}

type buildozerOptions struct {
	buildozerCmd []string
	homeDir      func() (string, error)
	timeProvider timeProvider
}

// BuildozerOptions is the function signature used to tweak the Buildozer pipeline.
type BuildozerOptions func(*buildozerOptions)

// Buildozer drives the Buildozer packaging pipeline: it validates the
// project descriptor, carries tool state across runs through the cache
// store, runs the packaging tool and collects the produced package.
type Buildozer struct {
	cache     cache.Store
	installer toolInstaller
	opts      buildozerOptions

	spec    buildspec.Buildozer
	targets []cacheTarget
}

// cacheTarget pairs a cache key with the directory it covers.
type cacheTarget struct {
	key cache.Key
	dst string // restore destination, parent of dir
	dir string // cached directory
}

// NewBuildozer assembles the Buildozer pipeline over the given cache store
// and tool installer.
func NewBuildozer(cacheStore cache.Store, installer toolInstaller, args ...BuildozerOptions) *Buildozer {
	opts := buildozerOptions{
		buildozerCmd: []string{"buildozer"},
		homeDir:      os.UserHomeDir,
		timeProvider: realTimeProvider{},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Buildozer{cache: cacheStore, installer: installer, opts: opts}
}

// Name returns the pipeline name.
func (b *Buildozer) Name() string {
	return constants.PipelineBuildozer
}

// Steps returns the pipeline's step list in execution order.
func (b *Buildozer) Steps() []Step {
	return []Step{
		{Name: "validate project descriptor", Run: b.validateSpec},
		{Name: "provision buildozer", Run: b.provisionBuildozer},
		{Name: "restore caches", Run: b.restoreCaches},
		{Name: "package debug build", Run: b.packageDebug},
		{Name: "collect artifacts", Run: b.collectArtifacts},
		{Name: "save caches", Run: b.saveCaches},
	}
}

func (b *Buildozer) validateSpec(_ context.Context, r *Run) error {
	spec, err := buildspec.LoadBuildozer(filepath.Join(r.ProjectDir, constants.BuildozerSpecFile))
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	b.spec = spec
	slog.Info("Project descriptor is valid", "title", spec.Title, "package", spec.Domain+"."+spec.Package)
	return nil
}

func (b *Buildozer) provisionBuildozer(ctx context.Context, r *Run) error {
	return b.installer.EnsureBuildozer(ctx, r.Log)
}

// restoreCaches brings the local and global tool state back from the cache
// store. A miss is not an error; the run only counts as warm when every
// cached tree came back.
func (b *Buildozer) restoreCaches(_ context.Context, r *Run) error {
	targets, err := b.cacheTargets(r)
	if err != nil {
		return err
	}
	b.targets = targets

	hits := 0
	for _, t := range targets {
		hit, err := b.cache.Restore(t.key, t.dst)
		if err != nil {
			return err
		}
		if hit {
			hits++
		}
		slog.Debug("Cache restore", "key", t.key.String(), "hit", hit)
	}

	r.CacheHit = hits == len(targets)
	return nil
}

func (b *Buildozer) packageDebug(ctx context.Context, r *Run) error {
	slog.Info("Packaging debug build", "title", b.spec.Title, "version", b.spec.Version)

	cmdArgs := append(append([]string{}, b.opts.buildozerCmd...), "android", "debug")
	if err := cmdutils.RunStreamed(ctx, r.Log, r.ProjectDir, r.Env, cmdArgs[0], cmdArgs[1:]...); err != nil {
		return fmt.Errorf("%v failed: %w", cmdArgs, err)
	}
	return nil
}

// collectArtifacts copies the packaged binary next to the run report.
// Buildozer produces exactly one package per run; zero or several matches
// means the build went sideways.
func (b *Buildozer) collectArtifacts(_ context.Context, r *Run) error {
	artifacts, err := artifact.Collect(r.ProjectDir,
		[]string{filepath.Join(buildozerBinDir, "*"+constants.ArtifactExtension)}, 1, 1, r.ArtifactsDir)
	if err != nil {
		return err
	}

	r.Artifacts = artifacts
	return nil
}

func (b *Buildozer) saveCaches(_ context.Context, r *Run) error {
	for _, t := range b.targets {
		if !dirExists(t.dir) {
			slog.Debug("Nothing to cache", "dir", t.dir)
			continue
		}
		if err := b.cache.Save(t.key, t.dir); err != nil {
			return err
		}
	}
	return nil
}

// cacheTargets mints the cache keys of the run. The global tree is skipped
// when the home directory cannot be resolved.
func (b *Buildozer) cacheTargets(r *Run) ([]cacheTarget, error) {
	specPath := filepath.Join(r.ProjectDir, constants.BuildozerSpecFile)
	now := b.opts.timeProvider.Now()

	local, err := cache.NewKey(scopeBuildozerLocal, specPath, now)
	if err != nil {
		return nil, err
	}
	targets := []cacheTarget{{
		key: local,
		dst: r.ProjectDir,
		dir: filepath.Join(r.ProjectDir, buildozerWorkDir),
	}}

	home, err := b.opts.homeDir()
	if err != nil {
		slog.Warn("Home directory is not resolvable, global cache disabled", "error", err)
		return targets, nil
	}
	global, err := cache.NewKey(scopeBuildozerGlobal, specPath, now)
	if err != nil {
		return nil, err
	}

	return append(targets, cacheTarget{
		key: global,
		dst: home,
		dir: filepath.Join(home, buildozerWorkDir),
	}), nil
}
