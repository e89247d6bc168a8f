package main

import (
	"os"

	cmd "github.com/zetanetwork/zeta/src/cmd/zeta/command"
)

func main() {
	rootCmd := cmd.RootCmd

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
