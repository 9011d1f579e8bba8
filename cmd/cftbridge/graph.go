package main

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/adapters/file"
	"github.com/aretw0/cftbridge/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the synchronized model as a Mermaid diagram",
	Long: `Reads model.yaml and outputs a Mermaid diagram (graph TD) of the elements and
connectors the worker receives. With --url, the diagram comes from a running bridge and
highlights elements whose changes have not been acknowledged yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		if url != "" {
			return fetchGraph(cmd, strings.TrimRight(url, "/")+"/graph")
		}

		dir, _ := cmd.Flags().GetString("dir")
		model, err := file.LoadModel(filepath.Join(dir, cftbridge.ModelFile))
		if err != nil {
			return fmt.Errorf("error loading model: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(model, nil))
		return nil
	},
}

func fetchGraph(cmd *cobra.Command, url string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("url", "", "Control API of a running bridge")
}
