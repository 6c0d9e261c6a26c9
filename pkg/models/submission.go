package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Submission is one item sent by an end user to the bot.
type Submission struct {
	ID                string
	AuthorID          int64
	AuthorDisplayName string
	AuthorHandle      string
	Content           Content
	StructuredText    string
	Options           []string
	CreatedAt         time.Time
	Category          int
	OriginMessageID   int64
}

// Kind returns the content kind, KindOther when content is unset.
func (s *Submission) Kind() Kind {
	if s.Content == nil {
		return KindOther
	}
	return s.Content.Kind()
}

// RawContent returns the user's original text or caption.
func (s *Submission) RawContent() string {
	if s.Content == nil {
		return ""
	}
	return s.Content.Body()
}

// submissionRecord is the flat on-disk shape. The legacy field names are
// read so tables written by the first generation load unchanged.
type submissionRecord struct {
	ID                string   `json:"id"`
	AuthorID          int64    `json:"author_id"`
	AuthorDisplayName string   `json:"author_display_name"`
	AuthorHandle      string   `json:"author_handle"`
	Kind              string   `json:"kind"`
	RawContent        *string  `json:"raw_content"`
	StructuredText    *string  `json:"structured_text"`
	Options           []string `json:"options"`
	MediaReference    *string  `json:"media_reference"`
	FileName          string   `json:"file_name,omitempty"`
	CreatedAt         string   `json:"created_at"`
	Category          *int     `json:"category"`
	OriginMessageID   int64    `json:"origin_message_id"`

	// legacy
	QuestionID   string  `json:"question_id,omitempty"`
	UserID       int64   `json:"user_id,omitempty"`
	Username     string  `json:"username,omitempty"`
	Fullname     string  `json:"fullname,omitempty"`
	MessageType  string  `json:"message_type,omitempty"`
	LegacyBody   *string `json:"content,omitempty"`
	FileID       *string `json:"file_id,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
	MessageID    int64   `json:"message_id,omitempty"`
	QuestionText *string `json:"question_text,omitempty"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// MarshalJSON writes the flat record.
func (s Submission) MarshalJSON() ([]byte, error) {
	rec := submissionRecord{
		ID:                s.ID,
		AuthorID:          s.AuthorID,
		AuthorDisplayName: s.AuthorDisplayName,
		AuthorHandle:      s.AuthorHandle,
		Kind:              string(s.Kind()),
		RawContent:        strPtr(s.RawContent()),
		StructuredText:    strPtr(s.StructuredText),
		Options:           s.Options,
		CreatedAt:         s.CreatedAt.UTC().Format(time.RFC3339Nano),
		OriginMessageID:   s.OriginMessageID,
	}
	if rec.Options == nil {
		rec.Options = []string{}
	}
	if s.Content != nil {
		rec.MediaReference = strPtr(MediaReference(s.Content))
		if d, ok := s.Content.(Document); ok {
			rec.FileName = d.FileName
		}
	}
	if s.Category > 0 {
		c := s.Category
		rec.Category = &c
	}
	return json.Marshal(rec)
}

// UnmarshalJSON reads either the current record or a legacy question record.
func (s *Submission) UnmarshalJSON(b []byte) error {
	var rec submissionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}

	out := Submission{
		ID:                rec.ID,
		AuthorID:          rec.AuthorID,
		AuthorDisplayName: rec.AuthorDisplayName,
		AuthorHandle:      rec.AuthorHandle,
		StructuredText:    deref(rec.StructuredText),
		Options:           rec.Options,
		OriginMessageID:   rec.OriginMessageID,
	}
	kind := rec.Kind
	raw := deref(rec.RawContent)
	media := deref(rec.MediaReference)
	created := rec.CreatedAt

	if out.ID == "" && rec.QuestionID != "" {
		out.ID = rec.QuestionID
		out.AuthorID = rec.UserID
		out.AuthorDisplayName = rec.Fullname
		out.AuthorHandle = rec.Username
		out.OriginMessageID = rec.MessageID
		kind = rec.MessageType
		raw = deref(rec.LegacyBody)
		media = deref(rec.FileID)
		created = rec.Timestamp
		if rec.QuestionText != nil {
			out.StructuredText = *rec.QuestionText
		}
	}
	if out.ID == "" {
		return fmt.Errorf("submission record has no id")
	}
	if rec.Category != nil {
		out.Category = *rec.Category
	}
	if out.Options == nil {
		out.Options = []string{}
	}
	out.Content = BuildContent(ParseKind(kind), raw, media, rec.FileName)
	out.CreatedAt = ParseTimestamp(created)

	*s = out
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 and the naive ISO layouts used by older
// tables. Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
