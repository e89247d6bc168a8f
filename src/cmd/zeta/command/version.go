package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zetanetwork/zeta/src/version"
)

//NewVersionCmd shows the version
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}

	return cmd
}
