package command

import (
	"github.com/spf13/cobra"

	"github.com/zetanetwork/zeta/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for Zeta
var RootCmd = &cobra.Command{
	Use:              "zeta",
	Short:            "zeta feed-sharing node",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		NewKeygenCmd(),
		NewVersionCmd(),
	)

	//do not print usage when error occurs
	RootCmd.SilenceUsage = true
}
