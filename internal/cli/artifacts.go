package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/spf13/cobra"
)

var deployProps []string

var deployCmd = &cobra.Command{
	Use:     "deploy <repo:path> <file>",
	Short:   "Deploy a local file into a repository",
	GroupID: "artifacts",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := storage.ParseRepoPath(args[0])
		if err != nil {
			return err
		}
		props, err := parseProperties(deployProps)
		if err != nil {
			return err
		}

		return withRuntime(nil, func(ctx context.Context, rt *config.Runtime) error {
			repo, err := rt.Repositories.Get(dst.RepoKey)
			if err != nil {
				return err
			}
			if !rt.Authorizer.CanDeploy(ctx, dst) {
				return fmt.Errorf("%s may not deploy to %s", security.UserFrom(ctx), dst)
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			item, err := repo.Deploy(ctx, dst.Path, f, props, security.UserFrom(ctx))
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("deployed %s (%d bytes, sha1 %s)", item.Path, item.Size, item.Checksums.SHA1))
			return nil
		})
	},
}

var lsRecursive bool

var lsCmd = &cobra.Command{
	Use:     "ls <repo:path>",
	Short:   "List a folder",
	GroupID: "artifacts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := storage.ParseRepoPath(args[0])
		if err != nil {
			return err
		}

		return withRuntime(nil, func(ctx context.Context, rt *config.Runtime) error {
			out := cmd.OutOrStdout()
			return rt.Items.View(ctx, func(tx storage.Tx) error {
				show := func(item *storage.Item) error {
					if item.IsFolder() {
						_, _ = headerColor.Fprintf(out, "%s/\n", item.Path)
						return nil
					}
					_, _ = fmt.Fprintf(out, "%s", item.Path)
					_, _ = dimColor.Fprintf(out, "  %d  %s\n", item.Size, item.Checksums.SHA1)
					return nil
				}

				if lsRecursive {
					return tx.Walk(p, show)
				}
				children, err := tx.Children(p)
				if storage.IsNotFound(err) {
					return errors.New(p.String() + " does not exist")
				}
				if err != nil {
					return err
				}
				for _, child := range children {
					if err := show(child); err != nil {
						return err
					}
				}
				return nil
			})
		})
	},
}

func init() {
	deployCmd.Flags().StringArrayVar(&deployProps, "prop", nil, "property set on the deployed item (key=value, repeatable)")
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "list the whole subtree")
}
