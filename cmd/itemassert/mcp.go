package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/itemassert/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assertion actions as MCP tools over stdio",
	Long: `Starts a Model Context Protocol server on stdio exposing assert.compare,
assert.binary and itemassert.actions. docs.request is added when a docs
token is configured.

MCP client configuration:
  {
    "mcpServers": {
      "itemassert": {
        "command": "/path/to/itemassert",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg.DocsToken != "")
	if err != nil {
		return err
	}

	srv := mcp.NewServer(mcp.ServerDeps{
		Registry:       a.registry,
		Validator:      a.validator,
		Concurrency:    cfg.Concurrency,
		ContinueOnFail: cfg.ContinueOnFail,
		Version:        version,
		Logger:         logger,
	})
	logger.InfoContext(cmd.Context(), "mcp server starting", "version", version, "actions", a.registry.Count())
	return srv.Serve(cmd.Context())
}
