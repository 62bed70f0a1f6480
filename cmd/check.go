package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/configtree/internal/lint"
	"github.com/agentic-research/configtree/internal/loader"
	"github.com/agentic-research/configtree/internal/value"
)

var checkSeedFile string

func init() {
	checkCmd.Flags().StringVar(&checkSeedFile, "seed", "", "Existing backend file to read into the tree before running the program")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [program]",
	Short: "Lint the catalog structure and, if given, dry-run a program recording soft errors instead of raising",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		findings, err := lint.CheckPath(catalogPath)
		if err != nil {
			return fmt.Errorf("lint: %w", err)
		}
		for _, f := range findings {
			fmt.Fprintln(os.Stderr, f)
		}

		inst, err := buildInstance()
		if err != nil {
			return err
		}
		if err := seedFromFile(inst, checkSeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if len(args) == 1 {
			// check never aborts load() on a rejected store: the Instance
			// runs under check=no, so a store that fails validation is
			// kept and filed on the Instance's soft-error map. Any other
			// load() failure stops the program without being recorded.
			inst.SetCheck(value.CheckNo)
			if err := loader.New(loader.Options{Check: value.CheckNo}).Load(inst.Root(), args[0]); err != nil {
				return err
			}
		}

		errs := inst.Errors()
		if len(errs) == 0 && len(findings) == 0 {
			fmt.Fprintln(os.Stdout, "ok")
			return nil
		}
		for path, e := range errs {
			fmt.Fprintf(os.Stdout, "%s: %v\n", path, e)
		}
		return fmt.Errorf("%d lint finding(s), %d soft error(s)", len(findings), len(errs))
	},
}
