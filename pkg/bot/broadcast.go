package bot

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"relaybot/pkg/logger"
	"relaybot/pkg/telegram"
)

type broadcastState int

const (
	stateIdle broadcastState = iota
	stateAwaitingContent
)

// sessions tracks the broadcast state of each staff member.
type sessions struct {
	mu sync.Mutex
	m  map[int64]broadcastState
}

func newSessions() *sessions { return &sessions{m: map[int64]broadcastState{}} }

func (s *sessions) begin(admin int64) {
	s.mu.Lock()
	s.m[admin] = stateAwaitingContent
	s.mu.Unlock()
}

func (s *sessions) awaiting(admin int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[admin] == stateAwaitingContent
}

// end returns the admin to idle and reports whether a broadcast was pending.
func (s *sessions) end(admin int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.m[admin] == stateAwaitingContent
	delete(s.m, admin)
	return was
}

func (b *Bot) startBroadcast(ctx context.Context, msg *telegram.Message) {
	b.broadcast.begin(msg.From.ID)
	logger.Info("broadcast_armed", "admin", msg.From.ID)
	b.reply(ctx, msg, fmt.Sprintf(textBroadcastPrompt, len(b.recipients())), nil)
}

func (b *Bot) cancelBroadcast(ctx context.Context, msg *telegram.Message) {
	if b.broadcast.end(msg.From.ID) {
		b.reply(ctx, msg, textBroadcastCanceled, nil)
		return
	}
	b.reply(ctx, msg, textNothingToCancel, nil)
}

// recipients are all known users who are not banned.
func (b *Bot) recipients() []int64 {
	ids := b.users.IDs()
	out := ids[:0]
	for _, id := range ids {
		if !b.bans.IsBanned(id) {
			out = append(out, id)
		}
	}
	return out
}

// runBroadcast copies msg to every recipient, paced to the configured
// rate, and reports the tally to the admin.
func (b *Bot) runBroadcast(ctx context.Context, msg *telegram.Message) {
	b.broadcast.end(msg.From.ID)

	limit := rate.Inf
	if b.cfg.BroadcastRPS > 0 {
		limit = rate.Limit(b.cfg.BroadcastRPS)
	}
	pace := rate.NewLimiter(limit, 1)

	ids := b.recipients()
	var ok, failed int
	for _, id := range ids {
		if err := pace.Wait(ctx); err != nil {
			failed += len(ids) - ok - failed
			break
		}
		if _, err := b.api.CopyMessage(ctx, id, msg.Chat.ID, msg.MessageID, telegram.SendOptions{}); err != nil {
			failed++
			logger.Debug("broadcast_delivery_failed", "user", id, "unreachable", telegram.IsUnreachable(err), "error", err)
			continue
		}
		ok++
	}
	logger.AuditEvent("broadcast_sent", "admin", msg.From.ID, "delivered", ok, "failed", failed, "total", len(ids))
	b.reply(ctx, msg, fmt.Sprintf(textBroadcastDone, ok, failed, len(ids)), nil)
}
