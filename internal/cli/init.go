package cli

import (
	"fmt"

	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initPath  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := initPath
		var err error
		if path == "" {
			path, err = config.InitConfig(initForce)
		} else {
			err = config.InitConfigToPath(path, initForce)
		}
		if err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("configuration written to %s", path))
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().StringVar(&initPath, "path", "", "write to this path instead of the default location")
}
