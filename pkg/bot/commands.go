package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"relaybot/pkg/bans"
	"relaybot/pkg/logger"
	"relaybot/pkg/models"
	"relaybot/pkg/telegram"
)

func (b *Bot) userCommand(ctx context.Context, msg *telegram.Message, cmd string) {
	switch cmd {
	case "start":
		name := msg.From.FirstName
		if name == "" {
			name = msg.From.DisplayName()
		}
		text := fmt.Sprintf(textWelcome, html.EscapeString(name))
		b.reply(ctx, msg, text, mainMenu(len(b.router.Labels()) > 0))
	case "help":
		b.reply(ctx, msg, textUserHelp, nil)
	case "category":
		if markup := b.categoryPicker(); markup != nil {
			b.reply(ctx, msg, textCategoryPrompt, markup)
			return
		}
		b.reply(ctx, msg, textCategoryNone, nil)
	default:
		b.reply(ctx, msg, textUnknownCommand, nil)
	}
}

// categoryPicker lists configured categories plus the general destination,
// or returns nil when no categories are configured.
func (b *Bot) categoryPicker() *telegram.InlineKeyboardMarkup {
	labels := b.router.Labels()
	if len(labels) == 0 {
		return nil
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(labels)+1)
	for _, c := range labels {
		rows = append(rows, telegram.Row(c.Label, cbCategory+strconv.Itoa(c.Number)))
	}
	rows = append(rows, telegram.Row(textGeneral, cbCategory+"0"))
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// staffCommand runs an admin command issued in the staff group. Unknown
// commands are ignored so other bots in the group keep working.
func (b *Bot) staffCommand(ctx context.Context, msg *telegram.Message, cmd, args string) {
	logger.Debug("staff_command", "command", cmd, "admin", msg.From.ID)
	switch cmd {
	case "help", "start":
		b.reply(ctx, msg, textStaffHelp, nil)
	case "stats":
		b.reply(ctx, msg, b.statsText(), nil)
	case "ban":
		b.banCommand(ctx, msg, args)
	case "unban":
		b.unbanCommand(ctx, msg, args)
	case "banned":
		b.reply(ctx, msg, b.banList(), nil)
	case "broadcast":
		b.startBroadcast(ctx, msg)
	case "cancel":
		b.cancelBroadcast(ctx, msg)
	case "export":
		b.exportTables(ctx, msg)
	case "import":
		b.importTable(ctx, msg)
	case "digest":
		b.digestCommand(ctx, msg, args)
	}
}

func (b *Bot) statsText() string {
	now := b.clock()
	st := b.archive.Stats()

	var sb strings.Builder
	sb.WriteString("📊 <b>Statistics</b>\n\n")
	fmt.Fprintf(&sb, "📝 Submissions: %s\n", humanize.Comma(int64(st.Total)))
	fmt.Fprintf(&sb, "✍️ Authors: %s\n", humanize.Comma(int64(st.Authors)))
	fmt.Fprintf(&sb, "👥 Users: %s (%s active this week)\n",
		humanize.Comma(int64(b.users.Count())),
		humanize.Comma(int64(b.users.ActiveSince(now.AddDate(0, 0, -7)))))
	fmt.Fprintf(&sb, "🧵 Threads: %s, replies: %s\n",
		humanize.Comma(int64(b.engine.Count())), humanize.Comma(int64(b.engine.ReplyCount())))
	fmt.Fprintf(&sb, "🚫 Banned: %s\n", humanize.Comma(int64(b.bans.Count())))

	if len(st.ByKind) > 0 {
		kinds := make([]models.Kind, 0, len(st.ByKind))
		for k := range st.ByKind {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		sb.WriteString("\n<b>By kind</b>\n")
		for _, k := range kinds {
			fmt.Fprintf(&sb, "%s: %s\n", strings.ToLower(string(k)), humanize.Comma(int64(st.ByKind[k])))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil
}

func (b *Bot) banCommand(ctx context.Context, msg *telegram.Message, args string) {
	idText, reason, _ := strings.Cut(args, " ")
	if idText == "" {
		b.reply(ctx, msg, textBanUsage, nil)
		return
	}
	id, ok := parseUserID(idText)
	if !ok {
		b.reply(ctx, msg, textIDNotNumber, nil)
		return
	}
	rec, err := b.bans.Ban(id, msg.From.ID, strings.TrimSpace(reason))
	switch {
	case errors.Is(err, bans.ErrAlreadyBanned):
		b.reply(ctx, msg, fmt.Sprintf(textAlreadyBanned, id), nil)
	case err != nil:
		logger.Error("ban_failed", "user", id, "error", err)
		b.reply(ctx, msg, textSomethingWrong, nil)
	default:
		b.reply(ctx, msg, fmt.Sprintf(textBanned1, id, html.EscapeString(rec.Reason)), nil)
	}
}

func (b *Bot) unbanCommand(ctx context.Context, msg *telegram.Message, args string) {
	if strings.TrimSpace(args) == "" {
		b.reply(ctx, msg, textUnbanUsage, nil)
		return
	}
	id, ok := parseUserID(args)
	if !ok {
		b.reply(ctx, msg, textIDNotNumber, nil)
		return
	}
	err := b.bans.Unban(id, msg.From.ID)
	switch {
	case errors.Is(err, bans.ErrNotBanned):
		b.reply(ctx, msg, fmt.Sprintf(textNotBanned, id), nil)
	case err != nil:
		logger.Error("unban_failed", "user", id, "error", err)
		b.reply(ctx, msg, textSomethingWrong, nil)
	default:
		b.reply(ctx, msg, fmt.Sprintf(textUnbanned, id), nil)
	}
}

func (b *Bot) banList() string {
	list := b.bans.List()
	if len(list) == 0 {
		return textNoBans
	}
	now := b.clock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚫 <b>Banned users</b> (%d)\n", len(list))
	for _, r := range list {
		fmt.Fprintf(&sb, "\n<code>%d</code> %s, by <code>%d</code>: %s",
			r.UserID, humanize.RelTime(r.BannedAt, now, "ago", "from now"), r.BannedBy, html.EscapeString(r.Reason))
	}
	return sb.String()
}

// digestCommand sends a PDF of the submissions of the last n days, or of
// every submission when no count is given.
func (b *Bot) digestCommand(ctx context.Context, msg *telegram.Message, args string) {
	subs := b.archive.All()
	if days, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && days > 0 {
		subs = b.archive.Since(b.clock().Add(-time.Duration(days) * 24 * time.Hour))
	}
	if len(subs) == 0 {
		b.reply(ctx, msg, textDigestEmpty, nil)
		return
	}
	if err := b.SendDigest(ctx, msg.Chat.ID, subs); err != nil {
		b.reply(ctx, msg, fmt.Sprintf(textDigestFailed, html.EscapeString(telegram.CompactError(err.Error()))), nil)
	}
}
