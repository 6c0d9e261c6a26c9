// Package bot turns Telegram updates into submissions, replies and staff
// commands. Updates are handled one at a time by the poll loop.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaybot/pkg/bans"
	"relaybot/pkg/correlation"
	"relaybot/pkg/logger"
	"relaybot/pkg/metrics"
	"relaybot/pkg/models"
	"relaybot/pkg/relay"
	"relaybot/pkg/store"
	"relaybot/pkg/structure"
	"relaybot/pkg/submissions"
	"relaybot/pkg/telegram"
	"relaybot/pkg/users"
)

// API is the part of the Bot API the bot talks to.
type API interface {
	relay.Transport
	SendDocumentBytes(ctx context.Context, chatID int64, fileName string, data []byte, caption string, opts telegram.SendOptions) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, id, text string, alert bool) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts telegram.SendOptions) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	SetMyCommands(ctx context.Context, cmds []telegram.BotCommand, scope *telegram.CommandScope) error
	SetChatMenuButton(ctx context.Context, chatID int64, button telegram.MenuButton) error
}

// Router routes categories and lists them for the category picker.
type Router interface {
	relay.Router
	Labels() []relay.Category
}

type Settings struct {
	StaffGroupID int64
	// MaxImportSize caps uploaded tables, in bytes.
	MaxImportSize int64

	SubmissionsPerMinute float64
	SubmissionBurst      int
	BroadcastRPS         float64

	// MilestoneEvery announces every n-th submission to staff; 0 disables.
	MilestoneEvery int

	DigestTitle    string
	DigestFontFile string
}

// Deps are the loaded domain caches the bot works on.
type Deps struct {
	API        API
	Store      *store.Store
	Archive    *submissions.Archive
	Engine     *correlation.Engine
	Bans       *bans.Registry
	Users      *users.Tracker
	Structurer structure.Structurer
	Router     Router
}

type Bot struct {
	api        API
	st         *store.Store
	archive    *submissions.Archive
	engine     *correlation.Engine
	bans       *bans.Registry
	users      *users.Tracker
	structurer structure.Structurer
	router     Router
	dispatcher *relay.Dispatcher
	cfg        Settings

	limiter   *limiterPool
	broadcast *sessions

	mu         sync.Mutex
	categories map[int64]int

	clock func() time.Time
	newID func() string
}

func New(d Deps, cfg Settings) *Bot {
	if cfg.MilestoneEvery == 0 {
		cfg.MilestoneEvery = 50
	}
	return &Bot{
		api:        d.API,
		st:         d.Store,
		archive:    d.Archive,
		engine:     d.Engine,
		bans:       d.Bans,
		users:      d.Users,
		structurer: d.Structurer,
		router:     d.Router,
		dispatcher: relay.NewDispatcher(d.API, d.Engine, d.Router),
		cfg:        cfg,
		limiter:    newLimiterPool(cfg.SubmissionsPerMinute/60, cfg.SubmissionBurst),
		broadcast:  newSessions(),
		categories: map[int64]int{},
		clock:      time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Close stops background work.
func (b *Bot) Close() {
	b.limiter.Shutdown()
}

// Handle processes one update. It never panics outward and never returns
// an error: failures are logged and reported to the chat they came from.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		msg := u.Message
		if b.router.IsStaffChat(msg.Chat.ID) {
			b.handleStaff(ctx, msg)
			return
		}
		if msg.Chat.IsPrivate() {
			b.handleUser(ctx, msg)
		}
	}
}

func (b *Bot) isStaffGroup(chatID int64) bool { return chatID == b.cfg.StaffGroupID }

func (b *Bot) handleStaff(ctx context.Context, msg *telegram.Message) {
	cmd, args := msg.Command()
	if cmd != "" {
		if b.isStaffGroup(msg.Chat.ID) {
			b.staffCommand(ctx, msg, cmd, args)
		}
		return
	}
	if b.isStaffGroup(msg.Chat.ID) && b.broadcast.awaiting(msg.From.ID) {
		b.runBroadcast(ctx, msg)
		return
	}
	if msg.ReplyToMessage != nil {
		b.handleStaffReply(ctx, msg)
	}
}

func (b *Bot) handleUser(ctx context.Context, msg *telegram.Message) {
	if b.bans.IsBanned(msg.From.ID) {
		b.reply(ctx, msg, textBanned, nil)
		return
	}
	if _, err := b.users.Touch(users.Profile{UserID: msg.From.ID, DisplayName: msg.From.DisplayName(), Handle: msg.From.Username}); err != nil {
		logger.Error("user_touch_failed", "user", msg.From.ID, "error", err)
	}
	metrics.SetTableRows(store.TableUsers, b.users.Count())

	if cmd, _ := msg.Command(); cmd != "" && msg.Text != "" {
		b.userCommand(ctx, msg, cmd)
		return
	}
	if r := msg.ReplyToMessage; r != nil && r.From != nil && r.From.IsBot {
		b.handleUserReply(ctx, msg)
		return
	}
	b.handleSubmission(ctx, msg)
}

// reply answers msg in its own chat and topic.
func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string, markup *telegram.InlineKeyboardMarkup) {
	opts := telegram.SendOptions{ReplyTo: msg.MessageID, ParseMode: "HTML", Markup: markup}
	if msg.IsTopicMessage {
		opts.ThreadID = msg.MessageThreadID
	}
	b.send(ctx, msg.Chat.ID, text, opts)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) {
	for _, part := range telegram.SplitMessage(text, 4096) {
		if _, err := b.api.SendMessage(ctx, chatID, part, opts); err != nil {
			logger.Warn("bot_send_failed", "chat", chatID, "error", err)
			return
		}
		opts.Markup = nil
	}
}

// failure maps an error from a relay attempt onto the message shown to
// the sender.
func failure(err error, unreachable, generic string) string {
	if correlation.IsInvariant(err) {
		metrics.InvariantViolations.Inc()
		logger.Error("invariant_violation", "invariant", true, "error", err)
		return textSomethingWrong
	}
	var de *relay.DispatchError
	if errors.As(err, &de) && de.Unreachable() {
		return unreachable
	}
	return generic
}

func ref(msg *telegram.Message) models.MessageRef {
	return models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID}
}

// contentOf converts a message into a content variant. Message types
// without a dedicated send method become Other and are copied.
func contentOf(msg *telegram.Message) models.Content {
	switch {
	case msg.Text != "":
		return models.Text{Text: msg.Text}
	case len(msg.Photo) > 0:
		return models.Photo{FileID: msg.LargestPhoto().FileID, Caption: msg.Caption}
	case msg.Document != nil:
		return models.Document{FileID: msg.Document.FileID, FileName: msg.Document.FileName, Caption: msg.Caption}
	case msg.Voice != nil:
		return models.Voice{FileID: msg.Voice.FileID, Caption: msg.Caption}
	case msg.Audio != nil:
		return models.Audio{FileID: msg.Audio.FileID, Caption: msg.Caption}
	case msg.Video != nil:
		return models.Video{FileID: msg.Video.FileID, Caption: msg.Caption}
	case msg.Sticker != nil:
		return models.Sticker{FileID: msg.Sticker.FileID, Emoji: msg.Sticker.Emoji}
	}
	return models.Other{Caption: strings.TrimSpace(msg.Caption)}
}
