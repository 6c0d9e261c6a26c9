package models

import "strings"

// Kind identifies the variant of a submission's content.
type Kind string

const (
	KindText     Kind = "TEXT"
	KindImage    Kind = "IMAGE"
	KindDocument Kind = "DOCUMENT"
	KindVoice    Kind = "VOICE"
	KindAudio    Kind = "AUDIO"
	KindVideo    Kind = "VIDEO"
	KindSticker  Kind = "STICKER"
	// KindOther covers message types with no dedicated send method; they are
	// relayed by copying the original message.
	KindOther Kind = "OTHER"
)

// legacy labels written by the first generation of the bot
var legacyKinds = map[string]Kind{
	"نص":          KindText,
	"صورة":        KindImage,
	"ملف":         KindDocument,
	"رسالة صوتية": KindVoice,
	"ملف صوتي":    KindAudio,
}

// ParseKind maps a stored kind label, canonical or legacy, onto a Kind.
func ParseKind(s string) Kind {
	s = strings.TrimSpace(s)
	switch k := Kind(strings.ToUpper(s)); k {
	case KindText, KindImage, KindDocument, KindVoice, KindAudio, KindVideo, KindSticker, KindOther:
		return k
	case "PHOTO":
		return KindImage
	}
	if k, ok := legacyKinds[s]; ok {
		return k
	}
	return KindOther
}

// Content is the tagged variant carried by a submission or reply. Each
// variant holds only the fields its kind needs.
type Content interface {
	Kind() Kind
	// Body returns the human text of the content (text or caption).
	Body() string
}

type Text struct {
	Text string
}

type Photo struct {
	FileID  string
	Caption string
}

type Document struct {
	FileID   string
	FileName string
	Caption  string
}

type Voice struct {
	FileID  string
	Caption string
}

type Audio struct {
	FileID  string
	Caption string
}

type Video struct {
	FileID  string
	Caption string
}

type Sticker struct {
	FileID string
	Emoji  string
}

// Other references a message that can only be relayed by copying it.
type Other struct {
	Caption string
}

func (Text) Kind() Kind     { return KindText }
func (Photo) Kind() Kind    { return KindImage }
func (Document) Kind() Kind { return KindDocument }
func (Voice) Kind() Kind    { return KindVoice }
func (Audio) Kind() Kind    { return KindAudio }
func (Video) Kind() Kind    { return KindVideo }
func (Sticker) Kind() Kind  { return KindSticker }
func (Other) Kind() Kind    { return KindOther }

func (c Text) Body() string     { return c.Text }
func (c Photo) Body() string    { return c.Caption }
func (c Document) Body() string { return c.Caption }
func (c Voice) Body() string    { return c.Caption }
func (c Audio) Body() string    { return c.Caption }
func (c Video) Body() string    { return c.Caption }
func (c Sticker) Body() string  { return "" }
func (c Other) Body() string    { return c.Caption }

// MediaReference returns the platform file id of media content, or "".
func MediaReference(c Content) string {
	switch v := c.(type) {
	case Photo:
		return v.FileID
	case Document:
		return v.FileID
	case Voice:
		return v.FileID
	case Audio:
		return v.FileID
	case Video:
		return v.FileID
	case Sticker:
		return v.FileID
	}
	return ""
}

// BuildContent reassembles a variant from flat stored fields.
func BuildContent(kind Kind, raw, fileID, fileName string) Content {
	switch kind {
	case KindText:
		return Text{Text: raw}
	case KindImage:
		return Photo{FileID: fileID, Caption: raw}
	case KindDocument:
		return Document{FileID: fileID, FileName: fileName, Caption: raw}
	case KindVoice:
		return Voice{FileID: fileID, Caption: raw}
	case KindAudio:
		return Audio{FileID: fileID, Caption: raw}
	case KindVideo:
		return Video{FileID: fileID, Caption: raw}
	case KindSticker:
		return Sticker{FileID: fileID, Emoji: raw}
	}
	return Other{Caption: raw}
}
