package telegram

import "strings"

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName joins first and last name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Chat struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	IsForum bool   `json:"is_forum,omitempty"`
}

// IsPrivate reports whether the chat is a one-to-one chat with a user.
func (c Chat) IsPrivate() bool { return c.Type == "private" }

type Message struct {
	MessageID       int64       `json:"message_id"`
	MessageThreadID int64       `json:"message_thread_id,omitempty"`
	From            *User       `json:"from,omitempty"`
	Chat            Chat        `json:"chat"`
	Date            int64       `json:"date"`
	Text            string      `json:"text,omitempty"`
	Caption         string      `json:"caption,omitempty"`
	Photo           []PhotoSize `json:"photo,omitempty"`
	Document        *Document   `json:"document,omitempty"`
	Voice           *Voice      `json:"voice,omitempty"`
	Audio           *Audio      `json:"audio,omitempty"`
	Video           *Video      `json:"video,omitempty"`
	Sticker         *Sticker    `json:"sticker,omitempty"`
	ReplyToMessage  *Message    `json:"reply_to_message,omitempty"`
	IsTopicMessage  bool        `json:"is_topic_message,omitempty"`
}

// Command returns the bot command at the start of the text or caption,
// without the leading slash or a @botname suffix, plus its argument text.
func (m *Message) Command() (string, string) {
	s := m.Text
	if s == "" {
		s = m.Caption
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(s, " ")
	head = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// LargestPhoto returns the highest resolution photo size.
func (m *Message) LargestPhoto() *PhotoSize {
	if len(m.Photo) == 0 {
		return nil
	}
	best := &m.Photo[0]
	for i := range m.Photo {
		if m.Photo[i].Width*m.Photo[i].Height > best.Width*best.Height {
			best = &m.Photo[i]
		}
	}
	return best
}

type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

type Audio struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	Title    string `json:"title,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type Video struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	FileName string `json:"file_name,omitempty"`
}

type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Row builds one keyboard row of callback buttons from text/data pairs.
func Row(pairs ...string) []InlineKeyboardButton {
	row := make([]InlineKeyboardButton, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		row = append(row, InlineKeyboardButton{Text: pairs[i], CallbackData: pairs[i+1]})
	}
	return row
}

type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// CommandScope narrows where a command list is shown.
type CommandScope struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type MenuButton struct {
	Type string `json:"type"`
}

// SendOptions are the threading and formatting parameters shared by all
// send methods.
type SendOptions struct {
	ThreadID  int64
	ReplyTo   int64
	ParseMode string
	Markup    *InlineKeyboardMarkup
}

func (o SendOptions) apply(p map[string]any) {
	if o.ThreadID != 0 {
		p["message_thread_id"] = o.ThreadID
	}
	if o.ReplyTo != 0 {
		p["reply_to_message_id"] = o.ReplyTo
		// a deleted reply target still delivers, unthreaded
		p["allow_sending_without_reply"] = true
	}
	if o.ParseMode != "" {
		p["parse_mode"] = o.ParseMode
	}
	if o.Markup != nil {
		p["reply_markup"] = o.Markup
	}
}
