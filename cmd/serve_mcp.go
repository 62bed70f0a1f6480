package cmd

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/configtree/internal/instance"
	"github.com/agentic-research/configtree/internal/mcpserver"
)

var serveMCPSeedFile string

func init() {
	serveMCPCmd.Flags().StringVar(&serveMCPSeedFile, "seed", "", "Existing backend file to read into the tree before serving")
	rootCmd.AddCommand(serveMCPCmd)
}

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the tree named by --catalog over the Model Context Protocol on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := buildInstance()
		if err != nil {
			return err
		}
		if err := seedFromFile(inst, serveMCPSeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		safe := instance.NewSafeInstance(inst)
		srv := mcpserver.New(safe, "configtree", "0.1.0")
		return server.ServeStdio(srv)
	},
}
