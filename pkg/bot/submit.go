package bot

import (
	"context"
	"fmt"
	"strings"

	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
	"relaybot/pkg/telegram"
)

// handleSubmission records a new item from a user and relays it to the
// staff destination of the user's selected category.
func (b *Bot) handleSubmission(ctx context.Context, msg *telegram.Message) {
	user := msg.From
	if !b.limiter.Allow(user.ID) {
		metrics.RateLimited.Inc()
		logger.Warn("submission_rate_limited", "user", user.ID)
		b.reply(ctx, msg, textRateLimited, nil)
		return
	}

	content := contentOf(msg)
	sub := &models.Submission{
		ID:                b.newID(),
		AuthorID:          user.ID,
		AuthorDisplayName: user.DisplayName(),
		AuthorHandle:      user.Username,
		Content:           content,
		Options:           []string{},
		CreatedAt:         b.clock().UTC(),
		Category:          b.category(user.ID),
		OriginMessageID:   msg.MessageID,
	}
	if raw := strings.TrimSpace(content.Body()); raw != "" {
		res := b.structurer.Structure(ctx, raw)
		metrics.Structured.WithLabelValues(res.Source).Inc()
		if res.HasStructure() {
			sub.StructuredText = res.Stem
			sub.Options = res.Options
		}
	}
	metrics.Submissions.WithLabelValues(string(sub.Kind())).Inc()

	if err := b.archive.Add(sub); err != nil {
		// the row stays cached and is written with the next flush
		logger.Error("submission_save_failed", "submission", sub.ID, "error", err)
	}
	metrics.SetTableRows(store.TableSubmissions, b.archive.Count())

	threadID, err := b.engine.Open(sub)
	if err != nil {
		b.reply(ctx, msg, failure(err, textSubmitNoStaff, textSubmitFailed), nil)
		return
	}
	if _, err := b.dispatcher.RelayToStaff(ctx, sub, threadID); err != nil {
		b.reply(ctx, msg, failure(err, textSubmitNoStaff, textSubmitFailed), nil)
		return
	}
	metrics.SetTableRows(store.TableThreads, b.engine.Count())
	logger.Info("submission_received", "submission", sub.ID, "user", user.ID, "kind", string(sub.Kind()), "category", sub.Category, "options", len(sub.Options))
	b.reply(ctx, msg, textReceived, nil)

	if n := b.archive.Count(); b.cfg.MilestoneEvery > 0 && n%b.cfg.MilestoneEvery == 0 {
		b.send(ctx, b.cfg.StaffGroupID, fmt.Sprintf(textMilestone, n), telegram.SendOptions{})
	}
}

func (b *Bot) category(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.categories[userID]
}

func (b *Bot) setCategory(userID int64, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n == 0 {
		delete(b.categories, userID)
		return
	}
	b.categories[userID] = n
}
