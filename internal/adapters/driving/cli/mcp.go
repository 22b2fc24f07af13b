package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes two tools:
  index_document  OCR and index a scanned PDF
  ask_document    answer a question from a scanned PDF

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default, for Claude Desktop)
  scanqa mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  scanqa mcp serve --port 8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "scanqa": {
        "command": "/path/to/scanqa",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

// mcpRunner starts a configured server. Tests replace it.
var mcpRunner = func(cmd *cobra.Command, server *mcp.Server, addr string) error {
	if addr != "" {
		return server.RunHTTP(commandContext(cmd), addr)
	}
	return server.Run(commandContext(cmd))
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Pipeline: pipelineService,
	}
	if cacheService != nil {
		ports.Cache = cacheService
	}

	server, err := mcp.NewServer(ports, settings.Pipeline)
	if err != nil {
		return err
	}

	addr := ""
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
	}
	return mcpRunner(cmd, server, addr)
}
