package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/marmos91/dittorepo/pkg/relocate"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/spf13/cobra"
)

// errRelocationFailed makes the process exit non-zero once the outcome was printed.
var errRelocationFailed = errors.New("relocation recorded errors")

type relocateFlags struct {
	copy          bool
	dryRun        bool
	failFast      bool
	unixStyle     bool
	pruneDeferred bool
	syncMetadata  bool
	perItem       bool
	props         []string
}

// options layers the flags on top of the configured defaults.
func (f *relocateFlags) options(cmd *cobra.Command, defaults config.RelocationConfig) ([]relocate.Option, error) {
	opts := defaults.Options()

	if f.copy {
		opts = append(opts, relocate.AsCopy())
	}
	if f.dryRun {
		opts = append(opts, relocate.DryRun())
	}
	if f.failFast {
		opts = append(opts, relocate.FailFast())
	}
	if f.unixStyle {
		opts = append(opts, relocate.UnixStyle())
	}
	if f.pruneDeferred {
		opts = append(opts, relocate.PruneDeferred())
	}
	if f.syncMetadata {
		opts = append(opts, relocate.SyncMetadata())
	}
	if cmd.Flags().Changed("per-item") {
		strategy := relocate.SingleTransaction
		if f.perItem {
			strategy = relocate.PerItem
		}
		opts = append(opts, relocate.WithStrategy(strategy))
	}

	if len(f.props) > 0 {
		props, err := parseProperties(f.props)
		if err != nil {
			return nil, err
		}
		opts = append(opts, relocate.WithProperties(props))
	}
	return opts, nil
}

// parseProperties parses repeated key=value flags. Repeating a key adds a value.
func parseProperties(pairs []string) (storage.Properties, error) {
	props := storage.Properties{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q: expected key=value", pair)
		}
		props.Add(key, value)
	}
	return props, nil
}

func newRelocateCmd(asCopy bool) *cobra.Command {
	flags := &relocateFlags{copy: asCopy}

	use, short := "move", "Move an artifact or folder to another location"
	if asCopy {
		use, short = "copy", "Copy an artifact or folder to another location"
	}

	cmd := &cobra.Command{
		Use:     use + " <repo:path> <repo:path>",
		Short:   short,
		GroupID: "artifacts",
		Long: short + `.

Every item of the source tree is checked against the target repository's
release/snapshot policy, include/exclude patterns, your permissions and,
for POM descriptors, coordinate consistency. Rejected items stay where they
are and are reported; the rest is relocated.

Binaries already present in the target's binary store are linked rather
than copied.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := storage.ParseRepoPath(args[0])
			if err != nil {
				return err
			}
			dst, err := storage.ParseRepoPath(args[1])
			if err != nil {
				return err
			}

			return withRuntime(nil, func(ctx context.Context, rt *config.Runtime) error {
				opts, err := flags.options(cmd, rt.Config.Relocation)
				if err != nil {
					return err
				}
				cfg := relocate.NewMoveConfig(opts...)

				status, err := rt.Engine.Relocate(ctx, src, dst, cfg)
				if status != nil {
					printStatus(cmd.OutOrStdout(), cfg, status)
					// Closing the runtime drains the scheduled recalculations
					rt.Engine.FlushCandidates(status)
				}
				if err != nil {
					return err
				}
				if status.HasErrors() {
					return errRelocationFailed
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	if !asCopy {
		f.BoolVar(&flags.copy, "copy", false, "copy instead of moving")
	}
	f.BoolVar(&flags.dryRun, "dry-run", false, "report what would happen without changing anything")
	f.BoolVar(&flags.failFast, "fail-fast", false, "stop at the first warning or error")
	f.BoolVar(&flags.unixStyle, "unix-style", false, "relocate into the target when it is an existing folder")
	f.BoolVar(&flags.pruneDeferred, "prune-deferred", false, "prune emptied source folders in the background")
	f.BoolVar(&flags.syncMetadata, "sync-metadata", false, "recalculate version indexes before returning")
	f.BoolVar(&flags.perItem, "per-item", false, "commit every item in its own transaction")
	f.StringArrayVar(&flags.props, "prop", nil, "property stamped onto relocated items (key=value, repeatable)")

	return cmd
}
