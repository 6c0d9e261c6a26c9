package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relaybot/pkg/store"
)

var (
	importTable string
	importYes   bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace one table with the contents of an exported file",
	Long: `import replaces a table wholesale. The table is inferred from the
file name unless --table is given. Run it while the bot is stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		table := importTable
		if table == "" {
			t, ok := store.InferTable(file)
			if !ok {
				return fmt.Errorf("cannot tell which table %s belongs to; pass --table", file)
			}
			table = t
		}
		if !store.KnownTable(table) {
			return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%s is not a JSON object: %w", file, err)
		}

		if !importYes && term.IsTerminal(int(os.Stdin.Fd())) && !confirm(cmd, table, len(obj)) {
			return fmt.Errorf("import cancelled")
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.ReplaceRaw(table, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s rows, %s\n", table,
			humanize.Comma(int64(len(obj))), humanize.Bytes(uint64(len(data))))
		return nil
	},
}

// confirm asks before a table is replaced from an interactive shell.
func confirm(cmd *cobra.Command, table string, rows int) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "replace %s with %s rows? [y/N] ", table, humanize.Comma(int64(rows)))
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	importCmd.Flags().StringVar(&importTable, "table", "", "target table (questions_data, replies_data, users_data, banned_users)")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(importCmd)
}
