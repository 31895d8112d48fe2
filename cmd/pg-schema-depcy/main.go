package main

import (
	"os"

	"github.com/spf13/cobra"
)

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pg-schema-depcy",
		Short: "Diff two schema snapshots and generate the dependency-ordered SQL to get from one to the other",
	}
	rootCmd.AddCommand(buildPlanCmd())
	rootCmd.AddCommand(buildApplyCmd())
	rootCmd.AddCommand(buildGraphCmd())
	rootCmd.AddCommand(buildVersionCmd())
	return rootCmd
}

func main() {
	err := buildRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
