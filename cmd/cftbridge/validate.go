package main

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/adapters/file"
	"github.com/aretw0/cftbridge/pkg/adapters/process"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the workspace model and worker configuration",
	Long: `Parses model.yaml and worker.yaml, reports connectors that point at unknown
elements and checks that the worker command can be found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		out := cmd.OutOrStdout()

		model, err := file.LoadModel(filepath.Join(dir, cftbridge.ModelFile))
		if err != nil {
			return err
		}
		if problems := danglingConnectors(model); len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintln(out, "- "+p)
			}
			return fmt.Errorf("model has %d dangling connectors", len(problems))
		}

		cfg, err := process.LoadConfig(filepath.Join(dir, cftbridge.WorkerFile))
		if err != nil {
			return err
		}
		if cfg.Command == "" {
			fmt.Fprintln(out, "No worker configured; use --stub-worker to run without one.")
		} else if _, err := exec.LookPath(cfg.Command); err != nil {
			return fmt.Errorf("worker command %q not found: %w", cfg.Command, err)
		}

		fmt.Fprintf(out, "Workspace is valid (%d elements, %d connectors).\n", len(model.Elements), len(model.Connectors))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func danglingConnectors(model domain.Model) []string {
	known := make(map[int]bool, len(model.Elements))
	for _, e := range model.Elements {
		known[e.ID] = true
	}
	var problems []string
	for _, c := range model.Connectors {
		if !known[c.ClientID] || !known[c.SupplierID] {
			problems = append(problems, fmt.Sprintf("connector %d (%d -> %d) references an unknown element", c.ID, c.ClientID, c.SupplierID))
		}
	}
	return problems
}
