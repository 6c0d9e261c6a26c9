package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"TEXT", KindText},
		{"image", KindImage},
		{"photo", KindImage},
		{"نص", KindText},
		{"صورة", KindImage},
		{"ملف", KindDocument},
		{"رسالة صوتية", KindVoice},
		{"ملف صوتي", KindAudio},
		{"poll", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKind(tt.in))
		})
	}
}

func TestSubmissionFlatRecord(t *testing.T) {
	s := Submission{
		ID:              "q1",
		AuthorID:        77,
		Content:         Photo{FileID: "F1", Caption: "look"},
		CreatedAt:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Category:        3,
		OriginMessageID: 12,
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "IMAGE", flat["kind"])
	assert.Equal(t, "F1", flat["media_reference"])
	assert.Equal(t, "look", flat["raw_content"])
	assert.Equal(t, float64(3), flat["category"])
	assert.Nil(t, flat["structured_text"])

	var back Submission
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Photo{FileID: "F1", Caption: "look"}, back.Content)
	assert.Equal(t, 3, back.Category)
	assert.True(t, s.CreatedAt.Equal(back.CreatedAt))
}

func TestSubmissionLegacyRecord(t *testing.T) {
	raw := `{
		"question_id": "abc",
		"user_id": 5,
		"username": "sara",
		"fullname": "Sara A",
		"message_type": "ملف",
		"content": "notes.pdf",
		"file_id": "DOC1",
		"timestamp": "2024-11-02T09:30:15.123456",
		"message_id": 40,
		"question_text": "Which one?",
		"options": ["a", "b"]
	}`
	var s Submission
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, int64(5), s.AuthorID)
	assert.Equal(t, "sara", s.AuthorHandle)
	assert.Equal(t, KindDocument, s.Kind())
	assert.Equal(t, "DOC1", MediaReference(s.Content))
	assert.Equal(t, "Which one?", s.StructuredText)
	assert.Equal(t, []string{"a", "b"}, s.Options)
	assert.Equal(t, int64(40), s.OriginMessageID)
	assert.Equal(t, 2024, s.CreatedAt.Year())
}

func TestSubmissionWithoutID(t *testing.T) {
	var s Submission
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"TEXT"}`), &s))
}

func TestLegacyThreadUpgrade(t *testing.T) {
	admin := int64(900)
	legacy := LegacyThread{
		UserID:                5,
		UserMessageID:         10,
		AdminMessageID:        &admin,
		AdminThreadMessageIDs: []int64{901},
		AdminReplies: []legacyAdminReply{
			{AdminMessageID: 902, UserReplyMessageID: 11},
			{AdminMessageID: 903},
		},
	}
	th, ok := legacy.Upgrade("q1", -100)
	require.True(t, ok)
	assert.Equal(t, ThreadSchemaVersion, th.SchemaVersion)
	assert.Equal(t, MessageRef{ChatID: 5, MessageID: 10}, th.Origin)
	assert.Equal(t, &MessageRef{ChatID: -100, MessageID: 900}, th.Relay)
	require.Len(t, th.Links, 3)
	assert.Nil(t, th.Links[0].Inbound)
	assert.Equal(t, UserToStaff, th.Links[0].Direction)
	assert.Equal(t, &MessageRef{ChatID: 5, MessageID: 11}, th.Links[1].Inbound)
	assert.Nil(t, th.Links[2].Inbound)
}

func TestLegacyThreadNeverRelayed(t *testing.T) {
	_, ok, err := DecodeThread("q2", json.RawMessage(`{"user_id":5,"user_message_id":3,"admin_message_id":null}`), -100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeCurrentThread(t *testing.T) {
	raw := `{"schema_version":2,"submission_id":"q3","author_id":5,
		"origin":{"chat_id":5,"message_id":3},
		"relay":{"chat_id":-200,"message_id":44},"reply_links":[]}`
	th, ok, err := DecodeThread("q3", json.RawMessage(raw), -100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(-200), th.Relay.ChatID)
}

func TestThreadCloneIsDeep(t *testing.T) {
	th := &Thread{Relay: &MessageRef{ChatID: 1, MessageID: 2}, Links: []ReplyLink{{Outbound: &MessageRef{ChatID: 1, MessageID: 3}}}}
	c := th.Clone()
	c.Relay.MessageID = 99
	c.Links[0].Outbound.MessageID = 99
	assert.Equal(t, int64(2), th.Relay.MessageID)
	assert.Equal(t, int64(3), th.Links[0].Outbound.MessageID)
}

func TestKnownUserLegacy(t *testing.T) {
	raw := `{"first_name":"Omar","last_name":"K","username":"omk","first_seen":"2024-01-02 03:04:05","last_active":"2024-02-02 03:04:05","message_count":4}`
	var u KnownUser
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	assert.Equal(t, "Omar K", u.DisplayName)
	assert.Equal(t, "omk", u.Handle)
	assert.Equal(t, 4, u.MessageCount)
	assert.Equal(t, time.February, u.LastActive.Month())
}

func TestBanRecordLegacy(t *testing.T) {
	var r BanRecord
	require.NoError(t, json.Unmarshal([]byte(`{"banned_at":"2024-05-01T12:00:00.5","banned_by":9,"reason":"spam"}`), &r))
	assert.Equal(t, int64(9), r.BannedBy)
	assert.Equal(t, "spam", r.Reason)
	assert.Equal(t, 2024, r.BannedAt.Year())
}
