package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relaybot/pkg/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every table to a timestamped JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, p, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		out := exportOut
		if out == "" {
			out = p.Export
		}
		if err := os.MkdirAll(out, 0o700); err != nil {
			return err
		}
		tables, err := store.Dump(st)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, t := range store.Tables {
			path := filepath.Join(out, store.ExportName(t, now))
			if err := os.WriteFile(path, tables[t], 0o600); err != nil {
				return fmt.Errorf("write %s: %w", t, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, humanize.Bytes(uint64(len(tables[t]))))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (default <data>/state/export)")
	rootCmd.AddCommand(exportCmd)
}
