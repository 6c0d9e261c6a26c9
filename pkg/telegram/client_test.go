package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
	files map[string][]byte
	reply func(method string, params map[string]any) string
}

func (f *fakeAPI) handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if strings.HasPrefix(path, "/file/botTOKEN/") {
		_, _ = ctx.Write([]byte("file-body"))
		return
	}
	method := strings.TrimPrefix(path, "/botTOKEN/")
	params := map[string]any{}
	if strings.HasPrefix(string(ctx.Request.Header.ContentType()), "multipart/") {
		form, err := ctx.MultipartForm()
		if err == nil {
			for k, v := range form.Value {
				params[k] = v[0]
			}
			for k, fh := range form.File {
				fd, _ := fh[0].Open()
				buf, _ := io.ReadAll(fd)
				fd.Close()
				f.mu.Lock()
				f.files[k+":"+fh[0].Filename] = buf
				f.mu.Unlock()
			}
		}
	} else {
		_ = json.Unmarshal(ctx.PostBody(), &params)
	}
	f.mu.Lock()
	f.calls[method] = append(f.calls[method], params)
	f.mu.Unlock()
	ctx.SetContentType("application/json")
	_, _ = ctx.WriteString(f.reply(method, params))
}

func (f *fakeAPI) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls[method]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func newFake(t *testing.T, reply func(method string, params map[string]any) string) (*Client, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{calls: map[string][]map[string]any{}, files: map[string][]byte{}, reply: reply}
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, f.handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	c, err := New(Options{
		Token:   "TOKEN",
		BaseURL: "http://telegram.test",
		Timeout: 2 * time.Second,
		Dial:    func(addr string) (net.Conn, error) { return ln.Dial() },
	})
	require.NoError(t, err)
	return c, f
}

func okMessage(id int64) string {
	return fmt.Sprintf(`{"ok":true,"result":{"message_id":%d,"chat":{"id":1,"type":"private"},"date":0}}`, id)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSendMessageWithThreading(t *testing.T) {
	c, f := newFake(t, func(string, map[string]any) string { return okMessage(77) })

	m, err := c.SendMessage(context.Background(), -100, "hello", SendOptions{ThreadID: 5, ReplyTo: 9, ParseMode: "HTML"})
	require.NoError(t, err)
	assert.Equal(t, int64(77), m.MessageID)

	p := f.last("sendMessage")
	assert.Equal(t, float64(-100), p["chat_id"])
	assert.Equal(t, "hello", p["text"])
	assert.Equal(t, float64(5), p["message_thread_id"])
	assert.Equal(t, float64(9), p["reply_to_message_id"])
	assert.Equal(t, true, p["allow_sending_without_reply"])
	assert.Equal(t, "HTML", p["parse_mode"])
}

func TestSendMediaByFileID(t *testing.T) {
	c, f := newFake(t, func(string, map[string]any) string { return okMessage(1) })
	ctx := context.Background()

	tests := []struct {
		method string
		field  string
		send   func() (*Message, error)
	}{
		{"sendPhoto", "photo", func() (*Message, error) { return c.SendPhoto(ctx, 1, "F", "cap", SendOptions{}) }},
		{"sendDocument", "document", func() (*Message, error) { return c.SendDocument(ctx, 1, "F", "cap", SendOptions{}) }},
		{"sendVoice", "voice", func() (*Message, error) { return c.SendVoice(ctx, 1, "F", "cap", SendOptions{}) }},
		{"sendAudio", "audio", func() (*Message, error) { return c.SendAudio(ctx, 1, "F", "cap", SendOptions{}) }},
		{"sendVideo", "video", func() (*Message, error) { return c.SendVideo(ctx, 1, "F", "cap", SendOptions{}) }},
		{"sendSticker", "sticker", func() (*Message, error) { return c.SendSticker(ctx, 1, "F", SendOptions{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := tt.send()
			require.NoError(t, err)
			p := f.last(tt.method)
			require.NotNil(t, p)
			assert.Equal(t, "F", p[tt.field])
		})
	}
}

func TestAPIErrorAndUnreachable(t *testing.T) {
	c, _ := newFake(t, func(method string, _ map[string]any) string {
		if method == "sendMessage" {
			return `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
		}
		return `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`
	})

	_, err := c.SendMessage(context.Background(), 1, "x", SendOptions{})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 403, ae.Code)
	assert.True(t, IsUnreachable(err))

	_, err = c.SendPhoto(context.Background(), 1, "F", "", SendOptions{})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 3, ae.RetryAfter)
	assert.False(t, IsUnreachable(err))
}

func TestIsUnreachableByDescription(t *testing.T) {
	assert.True(t, IsUnreachable(&APIError{Code: 400, Description: "Bad Request: chat not found"}))
	assert.False(t, IsUnreachable(&APIError{Code: 400, Description: "Bad Request: message text is empty"}))
	assert.False(t, IsUnreachable(assert.AnError))
}

func TestCopyMessageReturnsID(t *testing.T) {
	c, f := newFake(t, func(string, map[string]any) string { return `{"ok":true,"result":{"message_id":42}}` })
	id, err := c.CopyMessage(context.Background(), -100, 5, 9, SendOptions{ThreadID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, float64(5), f.last("copyMessage")["from_chat_id"])
}

func TestSendDocumentBytesUploads(t *testing.T) {
	c, f := newFake(t, func(string, map[string]any) string { return okMessage(3) })
	_, err := c.SendDocumentBytes(context.Background(), -100, "questions_data.json", []byte(`{"a":1}`), "export", SendOptions{})
	require.NoError(t, err)
	p := f.last("sendDocument")
	assert.Equal(t, "-100", p["chat_id"])
	assert.Equal(t, "export", p["caption"])
	assert.Equal(t, []byte(`{"a":1}`), f.files["document:questions_data.json"])
}

func TestDownloadFile(t *testing.T) {
	c, _ := newFake(t, func(string, map[string]any) string {
		return `{"ok":true,"result":{"file_id":"F","file_path":"documents/x.json"}}`
	})
	body, err := c.DownloadFile(context.Background(), "F")
	require.NoError(t, err)
	assert.Equal(t, "file-body", string(body))
}

func TestGetUpdatesDecodes(t *testing.T) {
	c, f := newFake(t, func(string, map[string]any) string {
		return `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":5,"first_name":"Ada","last_name":"L"},"chat":{"id":5,"type":"private"},"date":1,"text":"/start@relay_bot hi"}},
			{"update_id":11,"callback_query":{"id":"cb","from":{"id":5,"first_name":"Ada"},"data":"cat:3"}}]}`
	})
	ups, err := c.GetUpdates(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, float64(10), f.last("getUpdates")["offset"])

	cmd, arg := ups[0].Message.Command()
	assert.Equal(t, "start", cmd)
	assert.Equal(t, "hi", arg)
	assert.Equal(t, "Ada L", ups[0].Message.From.DisplayName())
	assert.Equal(t, "cat:3", ups[1].CallbackQuery.Data)
}

func TestCanceledContext(t *testing.T) {
	c, _ := newFake(t, func(string, map[string]any) string { return okMessage(1) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendMessage(ctx, 1, "x", SendOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollerDeliversAndPersistsOffset(t *testing.T) {
	var mu sync.Mutex
	served := false
	c, _ := newFake(t, func(method string, _ map[string]any) string {
		mu.Lock()
		defer mu.Unlock()
		if served {
			time.Sleep(20 * time.Millisecond)
			return `{"ok":true,"result":[]}`
		}
		served = true
		return `{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"date":1,"text":"boom"}},
			{"update_id":8,"message":{"message_id":2,"chat":{"id":5,"type":"private"},"date":1,"text":"hi"}}]}`
	})
	offsetFile := filepath.Join(t.TempDir(), "state", "telegram.offset")
	p := &Poller{Client: c, OffsetFile: offsetFile, Timeout: 0}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(_ context.Context, u Update) {
			if u.Message.Text == "boom" {
				panic("handler failure")
			}
			got <- u.Message.Text
		})
	}()

	select {
	case text := <-got:
		assert.Equal(t, "hi", text)
	case <-time.After(3 * time.Second):
		t.Fatal("update not delivered")
	}
	require.Eventually(t, func() bool {
		off, _ := LoadOffset(offsetFile)
		return off == 9
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, SplitMessage("  ", 10))
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	parts := SplitMessage("aaaa\nbbbb\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	long := strings.Repeat("x", 25)
	parts = SplitMessage(long, 10)
	assert.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}

func TestCompactError(t *testing.T) {
	assert.Equal(t, "unknown error", CompactError(" "))
	assert.Equal(t, "a b", CompactError("a\n\n b"))
	assert.Len(t, CompactError(strings.Repeat("z", 400)), 300)
}
