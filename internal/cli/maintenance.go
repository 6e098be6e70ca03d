package cli

import (
	"context"
	"fmt"

	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/marmos91/dittorepo/pkg/indexer"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/spf13/cobra"
)

var gcDryRun bool

var gcCmd = &cobra.Command{
	Use:     "gc",
	Short:   "Delete binaries no item references",
	GroupID: "maintenance",
	Long: `Delete binaries no file item references any more.

Binaries become orphaned when a move overwrites an existing file or when a
streamed copy fails verification. Orphans younger than the configured grace
period are kept until a later run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mutate := func(cfg *config.Config) {
			if gcDryRun {
				cfg.GC.DryRun = true
			}
		}

		return withRuntime(mutate, func(ctx context.Context, rt *config.Runtime) error {
			stats, err := rt.Collector.RunNow(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			title := "Garbage collection"
			if gcDryRun {
				title += " (dry run)"
			}
			printSection(out, title)
			_, _ = dimColor.Fprintf(out, "  %s\n", stats.Summary())

			switch {
			case stats.FailedCount > 0:
				printError(out, fmt.Sprintf("%d binaries could not be deleted", stats.FailedCount))
				return fmt.Errorf("garbage collection incomplete")
			case stats.OrphanedCount == 0:
				printSuccess(out, "no orphaned binaries")
			default:
				printSuccess(out, fmt.Sprintf("%d orphaned, %d deleted, %d deferred",
					stats.OrphanedCount, stats.DeletedCount, stats.DeferredCount))
			}
			return nil
		})
	},
}

var reindexRecursive bool

var reindexCmd = &cobra.Command{
	Use:     "reindex <repo:path>",
	Short:   "Recalculate the version index of a folder",
	GroupID: "maintenance",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := storage.ParseRepoPath(args[0])
		if err != nil {
			return err
		}

		return withRuntime(nil, func(ctx context.Context, rt *config.Runtime) error {
			if err := rt.Indexer.Recalculate(ctx, p, reindexRecursive); err != nil {
				return err
			}

			var item *storage.Item
			err := rt.Items.View(ctx, func(tx storage.Tx) error {
				var err error
				item, err = tx.Resolve(p)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if latest, ok := item.Properties.Get(indexer.PropLatest); ok {
				release, _ := item.Properties.Get(indexer.PropRelease)
				printSuccess(out, fmt.Sprintf("%s: latest=%s release=%s", p, latest, release))
			} else {
				printWarning(out, fmt.Sprintf("%s: no versions found", p))
			}
			return nil
		})
	},
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report orphans without deleting them")
	reindexCmd.Flags().BoolVarP(&reindexRecursive, "recursive", "r", false, "recalculate subfolders too")
}
