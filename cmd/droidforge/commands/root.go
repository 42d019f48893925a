// Package commands contains the commands of the droidforge command line tool.
package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/cli"
	"github.com/droidforge/droidforge/internal/constants"
	"github.com/droidforge/droidforge/internal/pipeline"
	"github.com/droidforge/droidforge/internal/uploader"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Runner executes a pipeline definition against a project and persists the
// run report.
type Runner interface {
	Run(ctx context.Context, def pipeline.Definition, projectDir string, out io.Writer) (artifact.Report, error)
}

// Uploader ships finished runs to the artifact service.
type Uploader interface {
	Upload(pipeline string, force bool) error
	UploadAll(pipelines []string, force, retry bool) error
}

type (
	newRunner   func(store artifact.Store, args ...pipeline.Options) Runner
	newUploader func(store artifact.Store, minAge uint, dryRun bool, args ...uploader.Options) Uploader
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	newRunner   newRunner
	newUploader newUploader
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbose int

	artifactsDir string
	cacheDir     string

	ServerURL string

	Build  buildConfig
	Upload uploadConfig
	Watch  watchConfig
	Cache  cacheConfig
}

type buildConfig struct {
	Pipeline   string
	ProjectDir string
	SkipUpload bool
	DryRun     bool
	SdkRoot    string
	QtRoot     string
	Env        []string
}

type uploadConfig struct {
	Pipelines   []string
	MinAge      uint32
	Force       bool
	DryRun      bool
	Retry       bool
	ReportsOnly bool
}

type watchConfig struct {
	Branch string
}

type cacheConfig struct {
	MaxAge time.Duration
}

type options struct {
	newRunner   newRunner
	newUploader newUploader
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New registers the commands and returns a new App.
func New(args ...Options) (*App, error) {
	opts := options{
		newRunner: func(store artifact.Store, args ...pipeline.Options) Runner {
			return pipeline.NewRunner(store, args...)
		},
		newUploader: func(store artifact.Store, minAge uint, dryRun bool, args ...uploader.Options) Uploader {
			return uploader.New(store, minAge, dryRun, args...)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	a := App{
		newRunner:   opts.newRunner,
		newUploader: opts.newUploader,
	}
	a.cmd = &cobra.Command{
		Use:           constants.CmdName + " [COMMAND]",
		Short:         "Package Android applications with repeatable pipelines",
		Long:          "droidforge packages Android applications through the Buildozer and Qt for Python pipelines. Finished runs are collected locally next to their build reports and can be uploaded to the droidforge artifact service.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true

			cli.SetVerbosity(a.config.Verbose) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetVerbosity(a.config.Verbose) // Update verbosity after loading config if necessary
			return nil
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installBuildCmd(&a)
	installValidateCmd(&a)
	installCacheCmd(&a)
	installWatchCmd(&a)
	installUploadCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbose, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().StringVar(&app.config.artifactsDir, "artifacts-dir", constants.GetDefaultCachePath(), "directory collected runs and their reports are stored under")
	cmd.PersistentFlags().StringVar(&app.config.cacheDir, "cache-dir", filepath.Join(constants.GetDefaultCachePath(), "cache"), "directory build caches are stored under")
	cmd.PersistentFlags().StringVar(&app.config.ServerURL, "server-url", constants.DefaultServerURL, "base URL of the artifact service runs are uploaded to")

	err := cmd.MarkPersistentFlagDirname("artifacts-dir")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark artifacts-dir flag as directory: %v", err))
	}

	err = cmd.MarkPersistentFlagDirname("cache-dir")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark cache-dir flag as directory: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

// uploaderOptions derives the uploader options from the app configuration.
func (a App) uploaderOptions() []uploader.Options {
	opts := []uploader.Options{uploader.WithBaseServerURL(a.config.ServerURL)}
	if a.config.Upload.ReportsOnly {
		opts = append(opts, uploader.WithoutArtifacts())
	}
	return opts
}

// pipelineAliases maps the accepted command line names to pipeline names.
var pipelineAliases = map[string]string{
	constants.PipelineBuildozer: constants.PipelineBuildozer,
	constants.PipelineQtDeploy:  constants.PipelineQtDeploy,
	"qt":                        constants.PipelineQtDeploy,
}

// pipelineName resolves an accepted command line name to a pipeline name.
func pipelineName(arg string) (string, error) {
	name, ok := pipelineAliases[arg]
	if !ok {
		return "", fmt.Errorf("unknown pipeline %q, expected one of: %s", arg, strings.Join(pipelineArgNames(), ", "))
	}
	return name, nil
}

// pipelineArgNames lists the accepted pipeline arguments in a stable order.
func pipelineArgNames() []string {
	return append(append([]string{}, constants.Pipelines...), "qt")
}

// pipelineArgs validates the single positional pipeline argument.
func pipelineArgs() cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		_, err := pipelineName(args[0])
		return err
	}
}
