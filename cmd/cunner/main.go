package main

import (
	"os"

	"github.com/cmwaters/cunner/cmd/cunner/commands"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.NewNodeCmd(),
		commands.NewSimulateCmd(),
		commands.NewKeygenCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
