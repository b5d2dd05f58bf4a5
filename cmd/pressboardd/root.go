package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pressboardd",
		Short: "pressboard imageboard server",
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
