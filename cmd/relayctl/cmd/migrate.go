package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaybot/pkg/store"
)

var migrateTo string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every table from --backend into another backend",
	Long: `migrate copies the tables of the source backend (--backend) into the
target backend (--to) under the same data directory. Tables the source
does not have are left untouched in the target.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("backend")
		data, _ := cmd.Flags().GetString("data")
		if from == migrateTo {
			return fmt.Errorf("source and target backend are both %q", from)
		}

		src, _, err := openBackend(from, data)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.Close()
		dst, _, err := openBackend(migrateTo, data)
		if err != nil {
			return fmt.Errorf("open target: %w", err)
		}
		defer dst.Close()

		n, err := store.Copy(dst, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "copied %d tables from %s to %s\n", n, from, migrateTo)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "pebble", "target backend: json or pebble")
	rootCmd.AddCommand(migrateCmd)
}
