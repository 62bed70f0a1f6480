// Package cmd implements the configtree CLI: load/dump/check against a
// catalog-described tree, and an MCP tool server for agent-driven sessions.
// Grounded on the teacher's cmd/build.go cobra registration style (one
// command per file, each with its own init() appending to rootCmd).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	catalogPath string
	rootClass   string
	configDir   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "Path to an HCL catalog file or directory (required)")
	rootCmd.PersistentFlags().StringVarP(&rootClass, "root-class", "r", "", "ConfigClass name to use as the tree root (defaults to the catalog's declared root)")
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "d", ".", "Directory backends resolve rw_config files against")
}

var rootCmd = &cobra.Command{
	Use:   "configtree",
	Short: "A typed configuration tree engine: DSL loader + catalog-driven validation",
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
