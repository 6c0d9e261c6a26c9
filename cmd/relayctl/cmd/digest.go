package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relaybot/pkg/digest"
	"relaybot/pkg/submissions"
)

var (
	digestOut   string
	digestDays  int
	digestTitle string
	digestFont  string
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Render archived submissions to a PDF",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, p, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		archive := submissions.NewArchive(st)
		if err := archive.Load(); err != nil {
			return err
		}
		now := time.Now()
		subs := archive.All()
		if digestDays > 0 {
			subs = archive.Since(now.AddDate(0, 0, -digestDays))
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no submissions in range")
			return nil
		}

		out := digestOut
		if out == "" {
			out = filepath.Join(p.Export, digest.FileName(now))
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := digest.Render(f, subs, digest.Options{Title: digestTitle, FontFile: digestFont, GeneratedAt: now}); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		info, err := os.Stat(out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d submissions\t%s\n", out, len(subs), humanize.Bytes(uint64(info.Size())))
		return nil
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestOut, "out", "", "output file (default <data>/state/export/digest_<time>.pdf)")
	digestCmd.Flags().IntVar(&digestDays, "days", 0, "only include the last N days (0 = everything)")
	digestCmd.Flags().StringVar(&digestTitle, "title", "Submissions digest", "document title")
	digestCmd.Flags().StringVar(&digestFont, "font", "", "TrueType font file for non-Latin text")
	rootCmd.AddCommand(digestCmd)
}
