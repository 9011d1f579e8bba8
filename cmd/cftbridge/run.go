package main

import (
	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <project-id>",
	Short: "Connect a project to the analysis worker",
	Long: `Opens the project, launches the worker configured in worker.yaml and keeps the
connection until interrupted. With --watch, edits to model.yaml are replayed to the
worker as element and connector events.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{
			Options: optionsFromFlags(cmd),
			Project: args[0],
			Stdout:  cmd.OutOrStdout(),
		}
		flags := cmd.Flags()
		opts.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
		opts.AckTimeout, _ = flags.GetDuration("ack-timeout")
		opts.Update, _ = flags.GetBool("update")
		opts.Watch, _ = flags.GetBool("watch")
		opts.StubWorker, _ = flags.GetBool("stub-worker")
		opts.HTTPAddr, _ = flags.GetString("http")
		opts.MCP, _ = flags.GetString("mcp")
		opts.MCPPort, _ = flags.GetInt("mcp-port")
		opts.StatusInterval, _ = flags.GetDuration("status-interval")
		opts.Quiet, _ = flags.GetBool("quiet")

		return cli.Execute(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Duration("connect-timeout", 0, "How long to wait for the worker to connect (default 10s)")
	runCmd.Flags().Duration("ack-timeout", 0, "How long to wait for each acknowledgement (default 30s)")
	runCmd.Flags().BoolP("update", "u", false, "Synchronize once after connecting")
	runCmd.Flags().BoolP("watch", "w", false, "Replay model.yaml edits to the worker")
	runCmd.Flags().Bool("stub-worker", false, "Serve the project with the built-in stub worker")
	runCmd.Flags().String("http", "", "Serve the control API on this address (e.g. :8080)")
	runCmd.Flags().String("mcp", "", "Serve MCP tools: stdio or sse")
	runCmd.Flags().Int("mcp-port", 8081, "Port for the MCP SSE transport")
	runCmd.Flags().Duration("status-interval", 0, "Print a status line at this interval")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress banner and status output")
}
