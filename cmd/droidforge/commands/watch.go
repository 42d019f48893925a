package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/droidforge/droidforge/internal/artifact"
	"github.com/droidforge/droidforge/internal/pipeline"
	"github.com/droidforge/droidforge/internal/watcher"
	"github.com/spf13/cobra"
)

func installWatchCmd(app *App) {
	watchCmd := &cobra.Command{
		Use:   "watch <pipeline>",
		Short: "Build the project when its watched branch moves",
		Long: `Build the project with the given pipeline every time new commits land on the watched branch of its git repository.

Updates arriving in quick succession are coalesced into a single run, and runs are executed one at a time. A failed build keeps the watcher alive. The command runs until interrupted.`,
		ValidArgs: pipelineArgNames(),
		Args:      pipelineArgs(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkEnvEntries(app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := pipelineName(args[0])
			if err != nil {
				return err
			}
			app.config.Build.Pipeline = name

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("Running watch command", "pipeline", name, "branch", app.config.Watch.Branch)
			return app.watchRun(ctx)
		},
	}

	installPipelineFlags(watchCmd, app)
	watchCmd.Flags().StringVarP(&app.config.Watch.Branch, "branch", "b", "main", "branch whose new commits trigger a build")

	app.cmd.AddCommand(watchCmd)
}

// watchRun builds the project every time the watched branch moves, until ctx
// is cancelled.
func (a *App) watchRun(ctx context.Context) error {
	b := a.config.Build

	def, err := a.pipelineDefinition(b.Pipeline)
	if err != nil {
		return err
	}

	w := watcher.New(b.ProjectDir, a.config.Watch.Branch)
	revisions, watchErrs, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	store := artifact.NewStore(a.config.artifactsDir)
	runner := a.newRunner(store, pipeline.WithEnv(b.Env))
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watchErrs:
			if !ok {
				return nil
			}
			return err

		case rev, ok := <-revisions:
			if !ok {
				return nil
			}

			slog.Info("Branch moved, starting build", "revision", rev, "pipeline", b.Pipeline)
			report, err := runner.Run(ctx, def, b.ProjectDir, os.Stdout)
			if err != nil {
				slog.Error("Build failed, keeping watch", "revision", rev, "error", err)
				continue
			}
			slog.Info("Build finished", "revision", rev, "run", report.RunID, "artifacts", len(report.Artifacts))

			if b.SkipUpload {
				continue
			}
			u := a.newUploader(store, 0, false, a.uploaderOptions()...)
			if err := u.Upload(b.Pipeline, false); err != nil {
				slog.Warn("Run upload failed, keeping watch", "revision", rev, "error", err)
			}
		}
	}
}
