package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/aretw0/cftbridge/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "Show the status of a project",
	Long: `With --url, asks a running "cftbridge run --http" for its live status.
Otherwise prints the persisted settings of the project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		jsonMode, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()
		renderer := tui.NewRenderer(!jsonMode && tui.IsInteractive(os.Stdout))

		if url != "" {
			st, err := cli.FetchStatus(cmd.Context(), url)
			if err != nil {
				return err
			}
			if jsonMode {
				return json.NewEncoder(out).Encode(st)
			}
			return render(out, renderer, tui.StatusMarkdown(st))
		}

		if len(args) == 0 {
			return fmt.Errorf("a project id is required without --url")
		}
		store, _, closeStore, err := cli.NewStore(optionsFromFlags(cmd))
		if err != nil {
			return err
		}
		defer closeStore()

		settings, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading project '%s': %w", args[0], err)
		}
		if jsonMode {
			return json.NewEncoder(out).Encode(settings)
		}
		return render(out, renderer, tui.SettingsMarkdown(settings))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("url", "", "Control API of a running bridge (e.g. http://localhost:8080)")
	statusCmd.Flags().Bool("json", false, "Print JSON")
}

func render(w io.Writer, renderer func(string) (string, error), markdown string) error {
	out, err := renderer(markdown)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}
