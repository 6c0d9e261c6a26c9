// Package telegram is a small Bot API client over fasthttp plus the
// long-poll update feed.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const DefaultBaseURL = "https://api.telegram.org"

type Options struct {
	Token   string
	BaseURL string
	// Timeout bounds every call except getUpdates, which waits for its
	// long-poll timeout plus this value.
	Timeout time.Duration
	// Dial overrides the connection dialer; tests use in-memory listeners.
	Dial fasthttp.DialFunc
}

type Client struct {
	token   string
	baseURL string
	timeout time.Duration
	hc      *fasthttp.Client
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func New(o Options) (*Client, error) {
	token := strings.TrimSpace(o.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &fasthttp.Client{
		Name:                "relaybot",
		MaxIdleConnDuration: 90 * time.Second,
		ReadBufferSize:      16 * 1024,
		Dial:                o.Dial,
	}
	return &Client{token: token, baseURL: base, timeout: timeout, hc: hc}, nil
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// do runs one request. If ctx ends first the call returns at once and
// the in-flight request is released when it completes.
func (c *Client) do(ctx context.Context, timeout time.Duration, build func(req *fasthttp.Request)) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	build(req)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	done := make(chan error, 1)
	go func() { done <- c.hc.DoDeadline(req, resp, deadline) }()

	select {
	case <-ctx.Done():
		go func() {
			<-done
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		return nil, 0, ctx.Err()
	case err := <-done:
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), resp.Body()...), resp.StatusCode(), nil
	}
}

func (c *Client) decode(method string, body []byte, status int, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("telegram %s http %d: %s", method, status, CompactError(string(body)))
	}
	if !env.OK {
		ae := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if ae.Code == 0 {
			ae.Code = status
		}
		if env.Parameters != nil {
			ae.RetryAfter = env.Parameters.RetryAfter
		}
		return ae
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s result: %w", method, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	return c.callTimeout(ctx, c.timeout, method, params, out)
}

func (c *Client) callTimeout(ctx context.Context, timeout time.Duration, method string, params map[string]any, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s encode: %w", method, err)
	}
	body, status, err := c.do(ctx, timeout, func(req *fasthttp.Request) {
		req.SetRequestURI(c.endpoint(method))
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	})
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return c.decode(method, body, status, out)
}

// upload posts a multipart form carrying one file.
func (c *Client) upload(ctx context.Context, method, field, fileName string, data []byte, params map[string]any, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				return fmt.Errorf("telegram %s encode %s: %w", method, k, err)
			}
			s = string(b)
		}
		if err := w.WriteField(k, s); err != nil {
			return err
		}
	}
	fw, err := w.CreateFormFile(field, fileName)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	body, status, err := c.do(ctx, c.timeout, func(req *fasthttp.Request) {
		req.SetRequestURI(c.endpoint(method))
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType(w.FormDataContentType())
		req.SetBody(buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return c.decode(method, body, status, out)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", map[string]any{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with ids at or above offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	params := map[string]any{
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		params["offset"] = offset
	}
	var ups []Update
	wait := time.Duration(timeoutSec)*time.Second + c.timeout
	if err := c.callTimeout(ctx, wait, "getUpdates", params, &ups); err != nil {
		return nil, err
	}
	return ups, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*Message, error) {
	p := map[string]any{"chat_id": chatID, "text": text}
	opts.apply(p)
	var m Message
	if err := c.call(ctx, "sendMessage", p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) sendByFileID(ctx context.Context, method, field string, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	p := map[string]any{"chat_id": chatID, field: fileID}
	if caption != "" {
		p["caption"] = caption
	}
	opts.apply(p)
	var m Message
	if err := c.call(ctx, method, p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendPhoto", "photo", chatID, fileID, caption, opts)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendDocument", "document", chatID, fileID, caption, opts)
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendVoice", "voice", chatID, fileID, caption, opts)
}

func (c *Client) SendAudio(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendAudio", "audio", chatID, fileID, caption, opts)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendVideo", "video", chatID, fileID, caption, opts)
}

func (c *Client) SendSticker(ctx context.Context, chatID int64, fileID string, opts SendOptions) (*Message, error) {
	return c.sendByFileID(ctx, "sendSticker", "sticker", chatID, fileID, "", opts)
}

// SendDocumentBytes uploads data as a new document.
func (c *Client) SendDocumentBytes(ctx context.Context, chatID int64, fileName string, data []byte, caption string, opts SendOptions) (*Message, error) {
	p := map[string]any{"chat_id": chatID}
	if caption != "" {
		p["caption"] = caption
	}
	opts.apply(p)
	var m Message
	if err := c.upload(ctx, "sendDocument", "document", fileName, data, p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CopyMessage re-sends any message without a forward header and returns
// the id of the copy.
func (c *Client) CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64, opts SendOptions) (int64, error) {
	p := map[string]any{"chat_id": chatID, "from_chat_id": fromChatID, "message_id": messageID}
	opts.apply(p)
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "copyMessage", p, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string, alert bool) error {
	p := map[string]any{"callback_query_id": id}
	if text != "" {
		p["text"] = text
	}
	if alert {
		p["show_alert"] = true
	}
	return c.call(ctx, "answerCallbackQuery", p, nil)
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) error {
	p := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if opts.ParseMode != "" {
		p["parse_mode"] = opts.ParseMode
	}
	if opts.Markup != nil {
		p["reply_markup"] = opts.Markup
	}
	return c.call(ctx, "editMessageText", p, nil)
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Download fetches a file body by the path returned from GetFile.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, errors.New("telegram download: empty file path")
	}
	body, status, err := c.do(ctx, c.timeout, func(req *fasthttp.Request) {
		req.SetRequestURI(c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(filePath, "/"))
		req.Header.SetMethod(fasthttp.MethodGet)
	})
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("telegram download: http %d", status)
	}
	return body, nil
}

// DownloadFile resolves fileID and returns its content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return c.Download(ctx, f.FilePath)
}

func (c *Client) SetMyCommands(ctx context.Context, cmds []BotCommand, scope *CommandScope) error {
	p := map[string]any{"commands": cmds}
	if scope != nil {
		p["scope"] = scope
	}
	return c.call(ctx, "setMyCommands", p, nil)
}

func (c *Client) SetChatMenuButton(ctx context.Context, chatID int64, button MenuButton) error {
	p := map[string]any{"menu_button": button}
	if chatID != 0 {
		p["chat_id"] = chatID
	}
	return c.call(ctx, "setChatMenuButton", p, nil)
}
