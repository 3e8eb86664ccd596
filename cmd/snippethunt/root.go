package main

import (
	"github.com/spf13/cobra"
)

var langFlag string

var rootCmd = &cobra.Command{
	Use:   "snippethunt",
	Short: "Find unsourced statements on Wikipedia and serve them as snippets",
	Long: "snippethunt extracts citation-needed snippets from a wiki, groups them by\n" +
		"category and user-defined intersections, serves them over HTTP and tracks\n" +
		"which ones get fixed.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "Language code (overrides SH_LANG)")

	rootCmd.AddCommand(newParseLiveCmd())
	rootCmd.AddCommand(newAssignCategoriesCmd())
	rootCmd.AddCommand(newUpdateIntersectionsCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newFixwatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newParsePageCmd())
}
