package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persisted project settings",
	Long: `List, inspect, edit and remove the per-project settings kept in the settings store
(.cftbridge/settings by default).`,
}

var settingsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all projects with settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SettingsStore) error {
			ids, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing projects: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No projects found.")
				return nil
			}
			fmt.Fprintln(out, "Projects:")
			for _, id := range ids {
				fmt.Fprintln(out, "- "+id)
			}
			return nil
		})
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Print the settings of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SettingsStore) error {
			settings, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading project '%s': %w", args[0], err)
			}
			data, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <project-id> <key> <value>",
	Short: "Change one setting of a project",
	Long:  "Keys: " + strings.Join(cli.SettingKeys(), ", ") + `. last-update only accepts "never", which forces a full resynchronization on the next update.`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SettingsStore) error {
			settings, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading project '%s': %w", args[0], err)
			}
			if err := cli.SetSetting(settings, args[1], args[2]); err != nil {
				return err
			}
			if err := store.Save(cmd.Context(), settings); err != nil {
				return fmt.Errorf("error saving project '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s of '%s' to %s\n", args[1], args[0], args[2])
			return nil
		})
	},
}

var settingsRmCmd = &cobra.Command{
	Use:   "rm <project-id>...",
	Short: "Remove the settings of one or more projects",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withStore(cmd, func(store ports.SettingsStore) error {
			hasError := false
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Error removing '%s': %v\n", id, err)
					hasError = true
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed project '%s'\n", id)
				}
			}
			if hasError {
				return fmt.Errorf("some projects could not be removed")
			}
			return nil
		})
		if err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsLsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsRmCmd)
}

func withStore(cmd *cobra.Command, fn func(ports.SettingsStore) error) error {
	store, _, closeStore, err := cli.NewStore(optionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}
