package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/configtree/internal/loader"
	"github.com/agentic-research/configtree/internal/value"
)

var (
	loadSeedFile string
	loadCheck    string
)

func init() {
	loadCmd.Flags().StringVar(&loadSeedFile, "seed", "", "Existing backend file to read into the tree before running the program")
	loadCmd.Flags().StringVar(&loadCheck, "check", "yes", "yes (default, raises on failure), skip, or no")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load [program]",
	Short: "Run a Loader DSL program against a fresh tree and print the resulting change log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := buildInstance()
		if err != nil {
			return err
		}
		if err := seedFromFile(inst, loadSeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		check, err := parseCheck(loadCheck)
		if err != nil {
			return err
		}
		if err := loader.New(loader.Options{Check: check}).Load(inst.Root(), args[0]); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "needs_save=%d\n", inst.NeedsSave())
		for _, line := range inst.ListChanges() {
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}

func parseCheck(s string) (value.CheckMode, error) {
	switch strings.ToLower(s) {
	case "yes", "":
		return value.CheckYes, nil
	case "skip":
		return value.CheckSkip, nil
	case "no":
		return value.CheckNo, nil
	default:
		return 0, fmt.Errorf("unknown --check mode %q (want yes, skip, or no)", s)
	}
}
