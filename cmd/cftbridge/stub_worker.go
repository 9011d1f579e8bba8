package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/aretw0/cftbridge/internal/workerstub"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/spf13/cobra"
)

var stubWorkerCmd = &cobra.Command{
	Use:   "stub-worker <address> <port> <workdir>",
	Short: "Run the built-in stub analysis worker",
	Long: `Connects back to a bridge and acknowledges every message, like the real worker
does. Point worker.yaml at it to exercise the process launcher without the
analysis toolchain:

  worker:
    command: cftbridge
    args: [stub-worker]`,
	Args:   cobra.ExactArgs(3),
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := workerstub.New(workerstub.WithLogger(cli.NewLogger(optionsFromFlags(cmd))))
		return w.Dial(ctx, ports.Endpoint{Address: args[0], Port: port, WorkDir: args[2]})
	},
}

func init() {
	rootCmd.AddCommand(stubWorkerCmd)
}
