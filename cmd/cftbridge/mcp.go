package main

import (
	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp <project-id>",
	Short: "Run the Model Context Protocol (MCP) server for a project",
	Long: `Connects the project and exposes its status, synchronization and analysis
as MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		stub, _ := cmd.Flags().GetBool("stub-worker")

		return cli.Execute(cmd.Context(), cli.RunOptions{
			Options:    optionsFromFlags(cmd),
			Project:    args[0],
			StubWorker: stub,
			MCP:        transport,
			MCPPort:    port,
			Quiet:      transport == cli.MCPStdio,
			Stdout:     cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", cli.MCPStdio, "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
	mcpCmd.Flags().Bool("stub-worker", false, "Serve the project with the built-in stub worker")
}
