package relay

import (
	"fmt"
	"html"
	"strings"

	"relaybot/pkg/models"
	"relaybot/pkg/structure"
)

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024
)

var kindIcons = map[models.Kind]string{
	models.KindText:     "📝",
	models.KindImage:    "🖼",
	models.KindDocument: "📎",
	models.KindVoice:    "🎙",
	models.KindAudio:    "🎵",
	models.KindVideo:    "🎬",
	models.KindSticker:  "🏷",
	models.KindOther:    "📦",
}

// Header is the HTML block staff see above a relayed submission.
func Header(sub *models.Submission, label string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>New submission</b>", kindIcons[sub.Kind()])
	if label != "" {
		fmt.Fprintf(&sb, " · %s", html.EscapeString(label))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "From: %s", html.EscapeString(displayName(sub)))
	if sub.AuthorHandle != "" {
		fmt.Fprintf(&sb, " (@%s)", html.EscapeString(sub.AuthorHandle))
	}
	fmt.Fprintf(&sb, " <code>%d</code>\n", sub.AuthorID)
	fmt.Fprintf(&sb, "ID: <code>%s</code>", html.EscapeString(sub.ID))
	return sb.String()
}

func displayName(sub *models.Submission) string {
	if n := strings.TrimSpace(sub.AuthorDisplayName); n != "" {
		return n
	}
	return "unknown"
}

// Body is the submission text staff see: the structured form when the
// structurer found options, the raw text otherwise.
func Body(sub *models.Submission) string {
	if len(sub.Options) > 0 && sub.StructuredText != "" {
		return structure.Render(sub.StructuredText, sub.Options)
	}
	return sub.RawContent()
}

// compose joins an HTML header with escaped user text and truncates to
// limit runes. Without a header the text is sent as plain text.
func compose(header, text string, limit int) string {
	if header == "" {
		return truncate(text, limit)
	}
	out := header
	if strings.TrimSpace(text) != "" {
		out += "\n\n" + html.EscapeString(text)
	}
	return truncate(out, limit)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// ReplyHeader labels a user's follow-up when copied into a staff chat.
func ReplyHeader(name, handle string, userID int64) string {
	s := "↩️ <b>Reply from</b> " + html.EscapeString(strings.TrimSpace(name))
	if handle != "" {
		s += " (@" + html.EscapeString(handle) + ")"
	}
	return s + fmt.Sprintf(" <code>%d</code>", userID)
}
