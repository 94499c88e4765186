package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imagery-dater",
		Short: "Find the exact capture time of street-level imagery",
		Long: `Resolve the capture timestamp of street-level imagery to the second,
given its location and the month it was taken in, by bisecting the capture
window against the imagery search service.`,
		SilenceUsage: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imagery-dater %s\n", version)
		},
	}

	rootCmd.AddCommand(newResolveCmd(), newPathCmd(), newQueryCmd(), versionCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
