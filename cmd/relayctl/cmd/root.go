package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relaybot/pkg/state"
	"relaybot/pkg/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Offline maintenance for relaybot data directories",
	Long: `relayctl works on a stopped bot's data directory: it exports and
imports tables, renders digests, inspects tables and migrates between
storage backends.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("data", "./data", "bot data directory")
	rootCmd.PersistentFlags().String("backend", "json", "storage backend: json or pebble")
}

// openStore opens the backend named by --backend under --data.
func openStore(cmd *cobra.Command) (*store.Store, state.Paths, error) {
	data, _ := cmd.Flags().GetString("data")
	backend, _ := cmd.Flags().GetString("backend")
	return openBackend(backend, data)
}

func openBackend(backend, data string) (*store.Store, state.Paths, error) {
	p := state.PathsFor(data)
	if backend == "memory" {
		return nil, p, fmt.Errorf("the memory backend has nothing to work on offline")
	}
	st, err := store.Open(backend, p.Tables, p.Store)
	if err != nil {
		return nil, p, err
	}
	return st, p, nil
}
