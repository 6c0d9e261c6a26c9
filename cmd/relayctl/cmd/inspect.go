package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"relaybot/pkg/store"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect [table]",
	Short: "Summarize the tables, or print one of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 0 {
			return summarize(cmd, st)
		}
		raw, err := st.Raw(args[0])
		if err != nil {
			return err
		}
		switch inspectFormat {
		case "json":
			_, err = cmd.OutOrStdout().Write(raw)
			fmt.Fprintln(cmd.OutOrStdout())
			return err
		case "yaml":
			out, err := yaml.JSONToYAML(raw)
			if err != nil {
				return fmt.Errorf("convert %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		return fmt.Errorf("unknown format %q (json or yaml)", inspectFormat)
	},
}

func summarize(cmd *cobra.Command, st *store.Store) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tSIZE")
	for _, t := range store.Tables {
		raw, err := st.Raw(t)
		if err != nil {
			return err
		}
		var rows map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			fmt.Fprintf(w, "%s\tmalformed\t%s\n", t, humanize.Bytes(uint64(len(raw))))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t, humanize.Comma(int64(len(rows))), humanize.Bytes(uint64(len(raw))))
	}
	return w.Flush()
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "json", "output format for a single table: json or yaml")
	rootCmd.AddCommand(inspectCmd)
}
