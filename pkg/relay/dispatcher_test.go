package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/correlation"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
	"relaybot/pkg/telegram"
)

const staffGroup = int64(-100)

type sent struct {
	method  string
	chatID  int64
	fileID  string
	text    string
	opts    telegram.SendOptions
	from    int64
	message int64
}

type fakeTransport struct {
	next  int64
	calls []sent
	fail  error
}

func (f *fakeTransport) record(s sent) (*telegram.Message, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.next++
	s.message = f.next + 1000
	f.calls = append(f.calls, s)
	return &telegram.Message{MessageID: s.message, Chat: telegram.Chat{ID: s.chatID}}, nil
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendMessage", chatID: chatID, text: text, opts: o})
}
func (f *fakeTransport) SendPhoto(_ context.Context, chatID int64, fileID, caption string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendPhoto", chatID: chatID, fileID: fileID, text: caption, opts: o})
}
func (f *fakeTransport) SendDocument(_ context.Context, chatID int64, fileID, caption string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendDocument", chatID: chatID, fileID: fileID, text: caption, opts: o})
}
func (f *fakeTransport) SendVoice(_ context.Context, chatID int64, fileID, caption string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendVoice", chatID: chatID, fileID: fileID, text: caption, opts: o})
}
func (f *fakeTransport) SendAudio(_ context.Context, chatID int64, fileID, caption string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendAudio", chatID: chatID, fileID: fileID, text: caption, opts: o})
}
func (f *fakeTransport) SendVideo(_ context.Context, chatID int64, fileID, caption string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendVideo", chatID: chatID, fileID: fileID, text: caption, opts: o})
}
func (f *fakeTransport) SendSticker(_ context.Context, chatID int64, fileID string, o telegram.SendOptions) (*telegram.Message, error) {
	return f.record(sent{method: "sendSticker", chatID: chatID, fileID: fileID, opts: o})
}
func (f *fakeTransport) CopyMessage(_ context.Context, chatID, fromChatID, messageID int64, o telegram.SendOptions) (int64, error) {
	m, err := f.record(sent{method: "copyMessage", chatID: chatID, from: fromChatID, opts: o})
	if err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

func setup(t *testing.T) (*Dispatcher, *fakeTransport, *correlation.Engine, *store.MemoryBackend) {
	t.Helper()
	mem := store.NewMemory()
	eng := correlation.New(store.New(mem), staffGroup)
	require.NoError(t, eng.Load())
	router := StaticRouter{
		Default: staffGroup,
		Categories: map[int]Target{
			3: {ChatID: -300, TopicID: 33, Label: "Physics"},
		},
	}
	tx := &fakeTransport{}
	return NewDispatcher(tx, eng, router), tx, eng, mem
}

func submission(id string, c models.Content, category int) *models.Submission {
	return &models.Submission{ID: id, AuthorID: 5, AuthorDisplayName: "Ada <L>", AuthorHandle: "ada", Content: c, Category: category, OriginMessageID: 10}
}

func TestRelayCategoryPhoto(t *testing.T) {
	d, tx, eng, _ := setup(t)
	sub := submission("s1", models.Photo{FileID: "PH", Caption: "What is 2+2?\nA) 3\nB) 4"}, 3)
	sub.StructuredText = "What is 2+2?"
	sub.Options = []string{"3", "4"}

	id, err := eng.Open(sub)
	require.NoError(t, err)
	res, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)

	require.Len(t, tx.calls, 1)
	c := tx.calls[0]
	assert.Equal(t, "sendPhoto", c.method)
	assert.Equal(t, int64(-300), c.chatID)
	assert.Equal(t, int64(33), c.opts.ThreadID)
	assert.Equal(t, "PH", c.fileID)
	assert.Contains(t, c.text, "Physics")
	assert.Contains(t, c.text, "Ada &lt;L&gt;")
	assert.Contains(t, c.text, "A) 3\nB) 4")

	assert.Equal(t, models.MessageRef{ChatID: -300, MessageID: c.message}, res.Ref)
	m, ok := eng.ResolveByStaffMessage(res.Ref)
	require.True(t, ok)
	assert.Equal(t, "s1", m.ThreadID)
	assert.Equal(t, int64(33), m.TopicID)
}

func TestRelayUnmappedCategoryUsesDefault(t *testing.T) {
	d, tx, eng, _ := setup(t)
	for i, cat := range []int{0, 9} {
		sub := submission("s"+string(rune('a'+i)), models.Text{Text: "hello"}, cat)
		sub.OriginMessageID = int64(10 + i)
		id, err := eng.Open(sub)
		require.NoError(t, err)
		_, err = d.RelayToStaff(context.Background(), sub, id)
		require.NoError(t, err)
		assert.Equal(t, staffGroup, tx.calls[i].chatID)
		assert.Zero(t, tx.calls[i].opts.ThreadID)
	}
}

func TestRelayStickerSendsHeaderFirst(t *testing.T) {
	d, tx, eng, _ := setup(t)
	sub := submission("s1", models.Sticker{FileID: "ST", Emoji: "👍"}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)
	res, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)

	require.Len(t, tx.calls, 2)
	header, sticker := tx.calls[0], tx.calls[1]
	assert.Equal(t, "sendMessage", header.method)
	assert.Equal(t, "sendSticker", sticker.method)
	assert.Equal(t, header.message, sticker.opts.ReplyTo)
	assert.Equal(t, sticker.message, res.Ref.MessageID)

	// staff may answer either the sticker or its header
	for _, msgID := range []int64{sticker.message, header.message} {
		m, ok := eng.ResolveByStaffMessage(models.MessageRef{ChatID: staffGroup, MessageID: msgID})
		require.True(t, ok, msgID)
		assert.Equal(t, id, m.ThreadID)
		assert.Equal(t, models.MessageRef{ChatID: 5, MessageID: 10}, m.Counterpart)
	}
	m, ok := eng.ResolveByUserMessage(models.MessageRef{ChatID: 5, MessageID: 10})
	require.True(t, ok)
	assert.Equal(t, res.Ref, m.Counterpart)
}

func TestUserStickerReplyResolvesFromBothStaffMessages(t *testing.T) {
	d, tx, eng, _ := setup(t)
	sub := submission("s1", models.Text{Text: "question"}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)
	relay, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)

	userReply := models.MessageRef{ChatID: 5, MessageID: 12}
	res, err := d.RelayReply(context.Background(), ReplyRequest{
		ThreadID: id, Direction: models.UserToStaff, Source: userReply,
		Counterpart: relay.Ref, Content: models.Sticker{FileID: "ST"},
		Header: ReplyHeader("Ada", "ada", 5),
	})
	require.NoError(t, err)
	require.Len(t, tx.calls, 3)
	header, sticker := tx.calls[1], tx.calls[2]
	assert.Equal(t, "sendSticker", sticker.method)
	assert.Equal(t, sticker.message, res.Ref.MessageID)

	for _, msgID := range []int64{sticker.message, header.message} {
		m, ok := eng.ResolveByStaffMessage(models.MessageRef{ChatID: staffGroup, MessageID: msgID})
		require.True(t, ok, msgID)
		assert.Equal(t, userReply, m.Counterpart)
	}
}

func TestRelayRecordFailureDiscardsThread(t *testing.T) {
	d, tx, eng, mem := setup(t)
	boom := errors.New("disk full")
	mem.FailSave = boom
	sub := submission("s1", models.Text{Text: "hello"}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)

	_, err = d.RelayToStaff(context.Background(), sub, id)
	require.ErrorIs(t, err, boom)
	require.Len(t, tx.calls, 1)
	assert.Equal(t, 0, eng.Count())
	assert.False(t, eng.Discard(id), "pending thread already discarded")
	_, ok := eng.ResolveByStaffMessage(models.MessageRef{ChatID: staffGroup, MessageID: tx.calls[0].message})
	assert.False(t, ok)

	// the submission can be opened and relayed again once the store recovers
	mem.FailSave = nil
	id, err = eng.Open(sub)
	require.NoError(t, err)
	_, err = d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)
	assert.Equal(t, 1, eng.Count())
}

func TestRelayFailureLeavesEngineUntouched(t *testing.T) {
	d, tx, eng, mem := setup(t)
	tx.fail = &telegram.APIError{Method: "sendMessage", Code: 403, Description: "Forbidden: bot was kicked"}
	sub := submission("s1", models.Text{Text: "hello"}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)

	_, err = d.RelayToStaff(context.Background(), sub, id)
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Unreachable())
	assert.Equal(t, 0, eng.Count())
	assert.Equal(t, 0, mem.Saves(store.TableThreads))
	assert.False(t, eng.Discard(id), "pending thread already discarded")
}

func TestRelayReplyBothDirections(t *testing.T) {
	d, tx, eng, _ := setup(t)
	sub := submission("s1", models.Text{Text: "question"}, 3)
	id, err := eng.Open(sub)
	require.NoError(t, err)
	relay, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)

	// staff answers the relayed copy
	staffReply := models.MessageRef{ChatID: -300, MessageID: 500}
	m, ok := eng.ResolveByStaffMessage(relay.Ref)
	require.True(t, ok)
	toUser, err := d.RelayReply(context.Background(), ReplyRequest{
		ThreadID: m.ThreadID, Direction: models.StaffToUser, Source: staffReply,
		Counterpart: m.Counterpart, Content: models.Text{Text: "four"},
	})
	require.NoError(t, err)
	last := tx.calls[len(tx.calls)-1]
	assert.Equal(t, int64(5), last.chatID)
	assert.Equal(t, int64(10), last.opts.ReplyTo)
	assert.Equal(t, "four", last.text)

	// user answers the delivered reply
	userReply := models.MessageRef{ChatID: 5, MessageID: 11}
	m, ok = eng.ResolveByUserMessage(toUser.Ref)
	require.True(t, ok)
	assert.Equal(t, staffReply, m.Counterpart)
	toStaff, err := d.RelayReply(context.Background(), ReplyRequest{
		ThreadID: m.ThreadID, Direction: models.UserToStaff, Source: userReply,
		Counterpart: m.Counterpart, TopicID: m.TopicID, Content: models.Voice{FileID: "VO"},
		Header: ReplyHeader("Ada", "ada", 5),
	})
	require.NoError(t, err)
	last = tx.calls[len(tx.calls)-1]
	assert.Equal(t, "sendVoice", last.method)
	assert.Equal(t, int64(33), last.opts.ThreadID)
	assert.Equal(t, int64(500), last.opts.ReplyTo)
	assert.True(t, strings.HasPrefix(last.text, "↩️"))

	m, ok = eng.ResolveByStaffMessage(toStaff.Ref)
	require.True(t, ok)
	assert.Equal(t, userReply, m.Counterpart)
	assert.Equal(t, 2, eng.ReplyCount())
}

func TestRelayReplyFailureRecordsNothing(t *testing.T) {
	d, tx, eng, _ := setup(t)
	sub := submission("s1", models.Text{Text: "question"}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)
	relay, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)

	tx.fail = errors.New("connection reset")
	_, err = d.RelayReply(context.Background(), ReplyRequest{
		ThreadID: id, Direction: models.StaffToUser, Source: models.MessageRef{ChatID: staffGroup, MessageID: 900},
		Counterpart: models.MessageRef{ChatID: 5, MessageID: 10}, Content: models.Text{Text: "x"},
	})
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.False(t, de.Unreachable())
	assert.Equal(t, 0, eng.ReplyCount())
	_, ok := eng.ResolveByStaffMessage(models.MessageRef{ChatID: staffGroup, MessageID: 900})
	assert.False(t, ok)
	_, ok = eng.ResolveByStaffMessage(relay.Ref)
	assert.True(t, ok)
}

func TestOtherContentIsCopied(t *testing.T) {
	d, tx, _, _ := setup(t)
	eng := d.engine
	sub := submission("s1", models.Other{}, 0)
	id, err := eng.Open(sub)
	require.NoError(t, err)
	res, err := d.RelayToStaff(context.Background(), sub, id)
	require.NoError(t, err)
	require.Len(t, tx.calls, 2)
	header, copied := tx.calls[0], tx.calls[1]
	assert.Equal(t, "copyMessage", copied.method)
	assert.Equal(t, int64(5), copied.from)
	assert.Equal(t, copied.message, res.Ref.MessageID)

	for _, msgID := range []int64{copied.message, header.message} {
		m, ok := eng.ResolveByStaffMessage(models.MessageRef{ChatID: staffGroup, MessageID: msgID})
		require.True(t, ok, msgID)
		assert.Equal(t, id, m.ThreadID)
	}
}

func TestRouterAndSwap(t *testing.T) {
	r := StaticRouter{Default: -1, Categories: map[int]Target{2: {ChatID: -2, Label: "Maths"}, 1: {ChatID: -3}}}
	assert.True(t, r.IsStaffChat(-2))
	assert.False(t, r.IsStaffChat(5))
	assert.Equal(t, []Category{{1, "Category 1"}, {2, "Maths"}}, r.Labels())

	s := NewSwapRouter(r)
	assert.Equal(t, int64(-2), s.Route(2).ChatID)
	s.Store(StaticRouter{Default: -9})
	assert.Equal(t, int64(-9), s.Route(2).ChatID)
	assert.False(t, s.IsStaffChat(-2))
}
