package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"relaybot/pkg/logger"
	"relaybot/pkg/models"
	"relaybot/pkg/telegram"
)

const (
	recentLimit   = 10
	previewLength = 50
)

func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if b.bans.IsBanned(q.From.ID) {
		b.answer(ctx, q, textBanned, true)
		return
	}

	switch {
	case q.Data == cbHowToReply:
		b.answer(ctx, q, textHowToReply, true)
		return
	case q.Data == cbOrders:
		b.edit(ctx, q, b.recentText(q.From.ID), backMenu())
	case q.Data == cbHelp:
		b.edit(ctx, q, textInstructions, backMenu())
	case q.Data == cbMenu:
		name := html.EscapeString(q.From.FirstName)
		b.edit(ctx, q, fmt.Sprintf(textWelcome, name), mainMenu(len(b.router.Labels()) > 0))
	case q.Data == cbCategories:
		if markup := b.categoryPicker(); markup != nil {
			b.edit(ctx, q, textCategoryPrompt, markup)
		}
	case strings.HasPrefix(q.Data, cbCategory):
		b.chooseCategory(ctx, q, strings.TrimPrefix(q.Data, cbCategory))
	default:
		logger.Debug("callback_unknown", "data", q.Data, "user", q.From.ID)
	}
	b.answer(ctx, q, "", false)
}

func (b *Bot) chooseCategory(ctx context.Context, q *telegram.CallbackQuery, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return
	}
	label := textGeneral
	if n != 0 {
		found := false
		for _, c := range b.router.Labels() {
			if c.Number == n {
				label, found = c.Label, true
				break
			}
		}
		if !found {
			// the category was removed from config since the picker was shown
			n = 0
		}
	}
	b.setCategory(q.From.ID, n)
	logger.Debug("category_selected", "user", q.From.ID, "category", n)
	b.edit(ctx, q, fmt.Sprintf(textCategorySet, html.EscapeString(label)), backMenu())
}

// recentText lists the user's latest submissions, newest first.
func (b *Bot) recentText(userID int64) string {
	subs := b.archive.ByAuthor(userID, recentLimit)
	if len(subs) == 0 {
		return textNoSubmissions
	}
	var sb strings.Builder
	sb.WriteString("📬 <b>Your latest submissions</b>\n")
	for i, s := range subs {
		fmt.Fprintf(&sb, "\n%d. %s · %s", i+1, s.CreatedAt.Format("2006-01-02"), strings.ToLower(string(s.Kind())))
		if p := preview(s); p != "" {
			sb.WriteString("\n   " + html.EscapeString(p))
		}
	}
	return sb.String()
}

func preview(s *models.Submission) string {
	text := s.StructuredText
	if text == "" {
		text = s.RawContent()
	}
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > previewLength {
		return string(r[:previewLength]) + "…"
	}
	return text
}

func (b *Bot) answer(ctx context.Context, q *telegram.CallbackQuery, text string, alert bool) {
	if err := b.api.AnswerCallbackQuery(ctx, q.ID, text, alert); err != nil {
		logger.Debug("callback_answer_failed", "error", err)
	}
}

// edit replaces the text of the message the pressed button belongs to.
func (b *Bot) edit(ctx context.Context, q *telegram.CallbackQuery, text string, markup *telegram.InlineKeyboardMarkup) {
	if q.Message == nil {
		return
	}
	opts := telegram.SendOptions{ParseMode: "HTML", Markup: markup}
	if err := b.api.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text, opts); err != nil {
		logger.Debug("callback_edit_failed", "chat", q.Message.Chat.ID, "error", err)
	}
}
