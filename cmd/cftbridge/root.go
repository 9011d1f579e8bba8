package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cftbridge/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cftbridge",
	Short: "cftbridge keeps a fault-tree analysis worker in sync with a model",
	Long: `cftbridge launches the external analysis worker for a project, streams model
changes to it over its line protocol and triggers analyses.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("dir", ".", "Workspace directory (model.yaml, worker.yaml and .cftbridge/)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Log JSON records to stderr")
	flags.String("store", cli.StoreFile, "Settings store: file, redis or memory")
	flags.String("redis-addr", "", "Redis address for the redis store")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.Bool("lock", false, "Guard open projects with a Redis lock (redis store only)")
	flags.String("bind", "", "Address the worker channel listens on (default loopback)")
}

func optionsFromFlags(cmd *cobra.Command) cli.Options {
	flags := cmd.Flags()
	var opts cli.Options
	opts.Dir, _ = flags.GetString("dir")
	opts.Debug, _ = flags.GetBool("debug")
	opts.LogLevel, _ = flags.GetString("log-level")
	opts.LogJSON, _ = flags.GetBool("log-json")
	opts.Store, _ = flags.GetString("store")
	opts.RedisAddr, _ = flags.GetString("redis-addr")
	opts.RedisPassword, _ = flags.GetString("redis-password")
	opts.RedisDB, _ = flags.GetInt("redis-db")
	opts.Lock, _ = flags.GetBool("lock")
	opts.BindAddress, _ = flags.GetString("bind")
	return opts
}
