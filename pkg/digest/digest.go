// Package digest renders submissions into a paginated PDF with lettered
// options under each question.
package digest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"

	"relaybot/pkg/models"
	"relaybot/pkg/structure"
)

const (
	fontFamily   = "digest"
	coreFont     = "Helvetica"
	noTextMarker = "(media submission without text)"
)

// compress is switched off by tests to inspect the content stream.
var compress = true

type Options struct {
	Title string
	// FontFile is a TrueType font with the glyphs the submissions use.
	// Without it the core Helvetica font is used and text outside
	// Windows-1252 is lost.
	FontFile    string
	GeneratedAt time.Time
}

// FileName is the attachment name for a digest generated at t.
func FileName(t time.Time) string {
	return "digest_" + t.UTC().Format("20060102_150405") + ".pdf"
}

// Render writes the PDF for subs, in the order given, to w.
func Render(w io.Writer, subs []*models.Submission, o Options) error {
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(o.Title, true)
	pdf.SetCreator("relaybot", true)
	pdf.SetCreationDate(o.GeneratedAt)
	pdf.SetCompression(compress)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")

	family := coreFont
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if o.FontFile != "" {
		b, err := os.ReadFile(o.FontFile)
		if err != nil {
			return fmt.Errorf("read digest font: %w", err)
		}
		pdf.AddUTF8FontFromBytes(fontFamily, "", b)
		pdf.AddUTF8FontFromBytes(fontFamily, "B", b)
		family = fontFamily
		tr = func(s string) string { return s }
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("load digest font: %w", err)
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(family, "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(family, "B", 18)
	pdf.MultiCell(0, 9, tr(o.Title), "", align(o.Title), false)
	pdf.SetFont(family, "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Generated %s · %d submissions", o.GeneratedAt.Format("2006-01-02 15:04"), len(subs))), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	for i, s := range subs {
		stem, options := content(s)

		pdf.SetFont(family, "B", 12)
		pdf.CellFormat(0, 7, fmt.Sprintf("%d.", i+1), "", 1, "L", false, 0, "")

		pdf.SetFont(family, "", 12)
		pdf.MultiCell(0, 6, tr(stem), "", align(stem), false)

		if len(options) > 0 {
			pdf.Ln(2)
			pdf.SetFont(family, "", 11)
			for j, opt := range options {
				line := structure.Letter(j) + ") " + opt
				pdf.SetX(22)
				pdf.MultiCell(0, 6, tr(line), "", align(opt), false)
			}
		}

		pdf.SetFont(family, "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, tr(meta(s)), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(5)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	return nil
}

// Bytes renders the digest into memory.
func Bytes(subs []*models.Submission, o Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, subs, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// content picks the structured stem when there is one, the raw text
// otherwise.
func content(s *models.Submission) (string, []string) {
	if len(s.Options) > 0 && strings.TrimSpace(s.StructuredText) != "" {
		return s.StructuredText, s.Options
	}
	if raw := strings.TrimSpace(s.RawContent()); raw != "" {
		return raw, nil
	}
	return noTextMarker, nil
}

func meta(s *models.Submission) string {
	who := strings.TrimSpace(s.AuthorDisplayName)
	if who == "" {
		who = fmt.Sprintf("user %d", s.AuthorID)
	}
	if s.AuthorHandle != "" {
		who += " (@" + s.AuthorHandle + ")"
	}
	return fmt.Sprintf("%s · %s · %s", s.CreatedAt.Format("2006-01-02 15:04"), strings.ToLower(string(s.Kind())), who)
}

// align right-aligns text written mostly in Arabic script.
func align(s string) string {
	var arabic, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters > 0 && arabic*2 > letters {
		return "R"
	}
	return "L"
}
