// Package relay sends submissions and replies across the user/staff
// boundary and records the resulting message ids with the correlation
// engine. A failed send never mutates correlation state.
package relay

import (
	"context"
	"fmt"

	"relaybot/pkg/correlation"
	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
	"relaybot/pkg/models"
	"relaybot/pkg/telegram"
)

// Transport is the subset of the Bot API the dispatcher sends with.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	SendVoice(ctx context.Context, chatID int64, fileID, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	SendAudio(ctx context.Context, chatID int64, fileID, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	SendSticker(ctx context.Context, chatID int64, fileID string, opts telegram.SendOptions) (*telegram.Message, error)
	CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64, opts telegram.SendOptions) (int64, error)
}

// DispatchError is a failed platform send.
type DispatchError struct {
	Direction string
	ThreadID  string
	ChatID    int64
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("relay %s thread %s to chat %d: %v", e.Direction, e.ThreadID, e.ChatID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Unreachable reports whether the recipient blocked the bot or no longer
// exists.
func (e *DispatchError) Unreachable() bool { return telegram.IsUnreachable(e.Err) }

// Result carries the id of the message the dispatcher created.
type Result struct {
	Ref     models.MessageRef
	TopicID int64
}

// ReplyRequest describes one reply to carry across.
type ReplyRequest struct {
	ThreadID  string
	Direction models.Direction
	// Source is the reply as the sender wrote it.
	Source models.MessageRef
	// Counterpart is the message on the receiving side to thread under.
	Counterpart models.MessageRef
	TopicID     int64
	Content     models.Content
	// Header is prepended as HTML when set.
	Header string
	Markup *telegram.InlineKeyboardMarkup
}

type Dispatcher struct {
	tx     Transport
	engine *correlation.Engine
	router Router
}

func NewDispatcher(tx Transport, engine *correlation.Engine, router Router) *Dispatcher {
	return &Dispatcher{tx: tx, engine: engine, router: router}
}

func (d *Dispatcher) Router() Router { return d.router }

// RelayToStaff sends a submission whose thread is pending to the staff
// destination of its category and commits the thread. On a send failure
// the pending thread is discarded.
func (d *Dispatcher) RelayToStaff(ctx context.Context, sub *models.Submission, threadID string) (Result, error) {
	target := d.router.Route(sub.Category)
	opts := telegram.SendOptions{ThreadID: target.TopicID, ParseMode: "HTML"}
	header := Header(sub, target.Label)
	origin := models.MessageRef{ChatID: sub.AuthorID, MessageID: sub.OriginMessageID}

	msgID, headerID, err := d.send(ctx, target.ChatID, sub.Content, header, Body(sub), origin, opts)
	if err != nil {
		d.engine.Discard(threadID)
		return Result{}, d.fail("to_staff", threadID, target.ChatID, err)
	}

	ref := models.MessageRef{ChatID: target.ChatID, MessageID: msgID}
	headerRef := models.MessageRef{ChatID: target.ChatID, MessageID: headerID}
	if err := d.engine.RecordRelay(threadID, ref, headerRef, target.TopicID); err != nil {
		d.engine.Discard(threadID)
		logger.Error("relay_record_failed", "thread", threadID, "chat", target.ChatID, "message", msgID, "invariant", correlation.IsInvariant(err), "error", err)
		return Result{}, err
	}
	metrics.Relays.WithLabelValues("to_staff").Inc()
	logger.Info("submission_relayed", "thread", threadID, "chat", target.ChatID, "topic", target.TopicID, "message", msgID, "kind", string(sub.Kind()))
	return Result{Ref: ref, TopicID: target.TopicID}, nil
}

// RelayReply delivers a reply to the other side of an existing thread and
// records the round trip.
func (d *Dispatcher) RelayReply(ctx context.Context, req ReplyRequest) (Result, error) {
	to := req.Counterpart
	opts := telegram.SendOptions{ReplyTo: to.MessageID, Markup: req.Markup}
	if req.Direction == models.UserToStaff {
		opts.ThreadID = req.TopicID
	}
	if req.Header != "" {
		opts.ParseMode = "HTML"
	}

	msgID, headerID, err := d.send(ctx, to.ChatID, req.Content, req.Header, req.Content.Body(), req.Source, opts)
	if err != nil {
		return Result{}, d.fail(string(req.Direction), req.ThreadID, to.ChatID, err)
	}

	sent := models.MessageRef{ChatID: to.ChatID, MessageID: msgID}
	outbound, inbound := req.Source, sent
	if req.Direction == models.UserToStaff {
		outbound, inbound = sent, req.Source
	}
	headerRef := models.MessageRef{ChatID: to.ChatID, MessageID: headerID}
	if err := d.engine.RecordRoundTrip(req.ThreadID, outbound, inbound, headerRef, req.Direction); err != nil {
		logger.Error("reply_record_failed", "thread", req.ThreadID, "chat", to.ChatID, "message", msgID, "invariant", correlation.IsInvariant(err), "error", err)
		return Result{}, err
	}
	metrics.Relays.WithLabelValues(string(req.Direction)).Inc()
	logger.Info("reply_relayed", "thread", req.ThreadID, "direction", string(req.Direction), "chat", to.ChatID, "message", msgID)
	return Result{Ref: sent, TopicID: opts.ThreadID}, nil
}

func (d *Dispatcher) fail(direction, threadID string, chatID int64, err error) error {
	de := &DispatchError{Direction: direction, ThreadID: threadID, ChatID: chatID, Err: err}
	reason := "error"
	if de.Unreachable() {
		reason = "unreachable"
	}
	metrics.DispatchFailures.WithLabelValues(direction, reason).Inc()
	logger.Error("relay_dispatch_failed", "direction", direction, "thread", threadID, "chat", chatID, "unreachable", de.Unreachable(), "error", err)
	return de
}

// send picks the Bot API method for the content variant and returns the
// id of the delivered copy. Stickers and copied messages cannot carry a
// caption, so a header goes out first as its own message; its id is the
// second result, zero otherwise.
func (d *Dispatcher) send(ctx context.Context, chatID int64, c models.Content, header, text string, source models.MessageRef, opts telegram.SendOptions) (int64, int64, error) {
	caption := compose(header, text, maxCaptionRunes)
	var (
		m   *telegram.Message
		err error
	)
	switch v := c.(type) {
	case models.Text:
		m, err = d.tx.SendMessage(ctx, chatID, compose(header, text, maxTextRunes), opts)
	case models.Photo:
		m, err = d.tx.SendPhoto(ctx, chatID, v.FileID, caption, opts)
	case models.Document:
		m, err = d.tx.SendDocument(ctx, chatID, v.FileID, caption, opts)
	case models.Voice:
		m, err = d.tx.SendVoice(ctx, chatID, v.FileID, caption, opts)
	case models.Audio:
		m, err = d.tx.SendAudio(ctx, chatID, v.FileID, caption, opts)
	case models.Video:
		m, err = d.tx.SendVideo(ctx, chatID, v.FileID, caption, opts)
	case models.Sticker:
		return d.withHeader(ctx, chatID, header, opts, func(o telegram.SendOptions) (int64, error) {
			sm, err := d.tx.SendSticker(ctx, chatID, v.FileID, o)
			if err != nil {
				return 0, err
			}
			return sm.MessageID, nil
		})
	default:
		return d.withHeader(ctx, chatID, header, opts, func(o telegram.SendOptions) (int64, error) {
			o.ParseMode = ""
			return d.tx.CopyMessage(ctx, chatID, source.ChatID, source.MessageID, o)
		})
	}
	if err != nil {
		return 0, 0, err
	}
	return m.MessageID, 0, nil
}

func (d *Dispatcher) withHeader(ctx context.Context, chatID int64, header string, opts telegram.SendOptions, body func(telegram.SendOptions) (int64, error)) (int64, int64, error) {
	if header == "" {
		id, err := body(opts)
		return id, 0, err
	}
	hm, err := d.tx.SendMessage(ctx, chatID, header, opts)
	if err != nil {
		return 0, 0, err
	}
	o := opts
	o.ReplyTo = hm.MessageID
	id, err := body(o)
	if err != nil {
		return 0, 0, err
	}
	return id, hm.MessageID, nil
}
