package bot

import (
	"context"
	"fmt"
	"html"

	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
	"relaybot/pkg/models"
	"relaybot/pkg/relay"
	"relaybot/pkg/telegram"
)

// handleStaffReply delivers a staff reply to the user whose thread the
// replied-to message belongs to. Replies to anything else are ignored.
func (b *Bot) handleStaffReply(ctx context.Context, msg *telegram.Message) {
	target := models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	m, ok := b.engine.ResolveByStaffMessage(target)
	if !ok {
		metrics.ResolutionMisses.WithLabelValues("staff").Inc()
		logger.Debug("staff_reply_unresolved", "chat", target.ChatID, "message", target.MessageID)
		return
	}

	_, err := b.dispatcher.RelayReply(ctx, relay.ReplyRequest{
		ThreadID:    m.ThreadID,
		Direction:   models.StaffToUser,
		Source:      ref(msg),
		Counterpart: m.Counterpart,
		Content:     contentOf(msg),
		Markup:      howToReplyMarkup(),
	})
	if err != nil {
		text := failure(err, textStaffBlocked, fmt.Sprintf(textStaffFailed, html.EscapeString(telegram.CompactError(err.Error()))))
		b.reply(ctx, msg, text, nil)
		return
	}
	b.reply(ctx, msg, textStaffReplySent, nil)
}

// handleUserReply carries a user's answer back under the staff message it
// replies to.
func (b *Bot) handleUserReply(ctx context.Context, msg *telegram.Message) {
	target := models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	m, ok := b.engine.ResolveByUserMessage(target)
	if !ok {
		metrics.ResolutionMisses.WithLabelValues("user").Inc()
		logger.Debug("user_reply_unresolved", "user", msg.From.ID, "message", target.MessageID)
		return
	}

	_, err := b.dispatcher.RelayReply(ctx, relay.ReplyRequest{
		ThreadID:    m.ThreadID,
		Direction:   models.UserToStaff,
		Source:      ref(msg),
		Counterpart: m.Counterpart,
		TopicID:     m.TopicID,
		Content:     contentOf(msg),
		Header:      relay.ReplyHeader(msg.From.DisplayName(), msg.From.Username, msg.From.ID),
	})
	if err != nil {
		b.reply(ctx, msg, failure(err, textSubmitNoStaff, textUserReplyFailed), nil)
		return
	}
	b.reply(ctx, msg, textUserReplySent, nil)
}
