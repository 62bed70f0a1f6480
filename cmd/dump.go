package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/configtree/internal/loader"
)

var dumpSeedFile string

func init() {
	dumpCmd.Flags().StringVar(&dumpSeedFile, "seed", "", "Existing backend file to read into the tree before dumping")
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump [program]",
	Short: "Run an optional program, then print the tree as a DSL program that reproduces it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := buildInstance()
		if err != nil {
			return err
		}
		if err := seedFromFile(inst, dumpSeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if len(args) == 1 {
			if err := loader.New(loader.Options{}).Load(inst.Root(), args[0]); err != nil {
				return err
			}
		}
		fmt.Fprintln(os.Stdout, loader.Dump(inst.Root()))
		return nil
	},
}
