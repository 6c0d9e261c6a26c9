package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ThreadSchemaVersion is the version written for every persisted thread.
const ThreadSchemaVersion = 2

// MessageRef identifies a platform message. Message ids are only unique
// within a chat, so the chat is part of the identity.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

func (r MessageRef) String() string { return fmt.Sprintf("%d/%d", r.ChatID, r.MessageID) }

// Direction tells which side authored a reply.
type Direction string

const (
	StaffToUser Direction = "staff_to_user"
	UserToStaff Direction = "user_to_staff"
)

// ReplyLink pairs the staff-side and user-side copies of one reply. Either
// side may be missing in upgraded legacy data. Header is a separate message
// sent ahead of the delivered copy, in the same chat as that copy.
type ReplyLink struct {
	Outbound   *MessageRef `json:"outbound,omitempty"`
	Inbound    *MessageRef `json:"inbound,omitempty"`
	Header     *MessageRef `json:"header,omitempty"`
	Direction  Direction   `json:"direction"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Thread is the persisted correlation record of one submission.
type Thread struct {
	SchemaVersion int         `json:"schema_version"`
	SubmissionID  string      `json:"submission_id"`
	AuthorID      int64       `json:"author_id"`
	Origin        MessageRef  `json:"origin"`
	Relay         *MessageRef `json:"relay"`
	RelayHeader   *MessageRef `json:"relay_header,omitempty"`
	TopicID       int64       `json:"topic_id,omitempty"`
	Links         []ReplyLink `json:"reply_links"`
	OpenedAt      time.Time   `json:"opened_at"`
}

// HeaderOnStaffSide reports whether the header sits in the staff chat. A
// header always goes to the side that received the delivered copy.
func (l ReplyLink) HeaderOnStaffSide() bool { return l.Direction == UserToStaff }

// Relayed reports whether the submission reached staff at least once.
func (t *Thread) Relayed() bool { return t.Relay != nil && !t.Relay.IsZero() }

// Clone returns a deep copy safe to hand out of a locked cache.
func (t *Thread) Clone() *Thread {
	c := *t
	if t.Relay != nil {
		r := *t.Relay
		c.Relay = &r
	}
	c.RelayHeader = clonePtr(t.RelayHeader)
	c.Links = make([]ReplyLink, len(t.Links))
	for i, l := range t.Links {
		c.Links[i] = l
		if l.Outbound != nil {
			o := *l.Outbound
			c.Links[i].Outbound = &o
		}
		if l.Inbound != nil {
			in := *l.Inbound
			c.Links[i].Inbound = &in
		}
		c.Links[i].Header = clonePtr(l.Header)
	}
	return &c
}

func clonePtr(r *MessageRef) *MessageRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// legacyAdminReply is one staff reply as recorded by schema version 1.
type legacyAdminReply struct {
	AdminMessageID     int64 `json:"admin_message_id"`
	UserReplyMessageID int64 `json:"user_reply_message_id"`
}

// LegacyThread is the version 1 replies record: a single staff copy plus
// loosely paired reply ids.
type LegacyThread struct {
	UserID                int64              `json:"user_id"`
	UserMessageID         int64              `json:"user_message_id"`
	AdminMessageID        *int64             `json:"admin_message_id"`
	AdminThreadMessageIDs []int64            `json:"admin_thread_message_ids"`
	AdminReplies          []legacyAdminReply `json:"admin_replies"`
}

// DecodeThread decodes one replies table entry of either schema. Version 1
// records are upgraded using staffChat as the chat of every staff-side id.
// ok is false for a version 1 record that was never relayed.
func DecodeThread(submissionID string, raw json.RawMessage, staffChat int64) (*Thread, bool, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, err
	}
	if probe.SchemaVersion >= ThreadSchemaVersion {
		var t Thread
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, false, err
		}
		if t.SubmissionID == "" {
			t.SubmissionID = submissionID
		}
		return &t, t.Relayed(), nil
	}

	var legacy LegacyThread
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, false, err
	}
	t, ok := legacy.Upgrade(submissionID, staffChat)
	return t, ok, nil
}

// Upgrade converts a version 1 record. Staff copies of user replies are
// kept as links with no user-side id; staff replies become links whose
// user-side id may be absent when delivery was never recorded.
func (l LegacyThread) Upgrade(submissionID string, staffChat int64) (*Thread, bool) {
	t := &Thread{
		SchemaVersion: ThreadSchemaVersion,
		SubmissionID:  submissionID,
		AuthorID:      l.UserID,
		Origin:        MessageRef{ChatID: l.UserID, MessageID: l.UserMessageID},
		Links:         []ReplyLink{},
	}
	if l.AdminMessageID == nil || *l.AdminMessageID == 0 {
		return t, false
	}
	t.Relay = &MessageRef{ChatID: staffChat, MessageID: *l.AdminMessageID}

	for _, id := range l.AdminThreadMessageIDs {
		if id == 0 {
			continue
		}
		t.Links = append(t.Links, ReplyLink{
			Outbound:  &MessageRef{ChatID: staffChat, MessageID: id},
			Direction: UserToStaff,
		})
	}
	for _, r := range l.AdminReplies {
		link := ReplyLink{Direction: StaffToUser}
		if r.AdminMessageID != 0 {
			link.Outbound = &MessageRef{ChatID: staffChat, MessageID: r.AdminMessageID}
		}
		if r.UserReplyMessageID != 0 {
			link.Inbound = &MessageRef{ChatID: l.UserID, MessageID: r.UserReplyMessageID}
		}
		if link.Outbound == nil && link.Inbound == nil {
			continue
		}
		t.Links = append(t.Links, link)
	}
	return t, true
}
