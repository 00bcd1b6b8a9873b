package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve lifesim tools over MCP stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: lifesim_generate, lifesim_validate, lifesim_archetypes.
Agent-requested datasets may only be written under <root>/data or
~/.lifesim/datasets. Calls are audited to .lifesim/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving project root: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "lifesim",
				Version:  version,
				Root:     absRoot,
				Settings: cfg,
				Logger:   newLogger(cfg),
			})
			if err != nil {
				return err
			}
			defer server.Close()

			return server.Run(context.Background())
		},
	}
}
