package commands

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/droidforge/droidforge/internal/cache"
	"github.com/spf13/cobra"
)

func installCacheCmd(app *App) {
	cacheCmd := &cobra.Command{
		Use:   "cache [COMMAND]",
		Short: "Manage the build cache store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running cache list command")
			return app.cacheListRun()
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cache entries older than max-age",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if app.config.Cache.MaxAge < 0 {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("max-age must not be negative")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running cache prune command", "max-age", app.config.Cache.MaxAge)
			return app.cachePruneRun()
		},
	}
	pruneCmd.Flags().DurationVar(&app.config.Cache.MaxAge, "max-age", 7*24*time.Hour, "remove entries older than this age")

	cacheCmd.AddCommand(listCmd)
	cacheCmd.AddCommand(pruneCmd)
	app.cmd.AddCommand(cacheCmd)
}

// cacheListRun prints the stored cache entries, one per line.
func (a App) cacheListRun() error {
	store, err := cache.New(a.config.cacheDir)
	if err != nil {
		return err
	}

	entries, err := store.List()
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%d\t%s\n", e.Key, e.Created.UTC().Format(time.RFC3339), e.Size, strings.Join(e.Dirs, ","))
	}
	return nil
}

// cachePruneRun removes cache entries older than the configured max age.
func (a App) cachePruneRun() error {
	store, err := cache.New(a.config.cacheDir)
	if err != nil {
		return err
	}

	removed, err := store.Prune(a.config.Cache.MaxAge)
	if err != nil {
		return err
	}

	fmt.Printf("%d entries pruned\n", removed)
	return nil
}
