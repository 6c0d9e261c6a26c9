package models

import (
	"encoding/json"
	"time"
)

// KnownUser is bookkeeping for anyone who has talked to the bot.
type KnownUser struct {
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Handle       string    `json:"handle"`
	FirstSeen    time.Time `json:"first_seen"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int       `json:"message_count"`
}

// UnmarshalJSON also reads the legacy users_data layout, which split the
// name and stored naive local timestamps.
func (u *KnownUser) UnmarshalJSON(b []byte) error {
	type current KnownUser
	var rec struct {
		current
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		Username      string `json:"username"`
		FirstSeenRaw  any    `json:"first_seen"`
		LastActiveRaw any    `json:"last_active"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	out := KnownUser(rec.current)
	if out.DisplayName == "" {
		out.DisplayName = joinName(rec.FirstName, rec.LastName)
	}
	if out.Handle == "" {
		out.Handle = rec.Username
	}
	if s, ok := rec.FirstSeenRaw.(string); ok {
		out.FirstSeen = ParseTimestamp(s)
	}
	if s, ok := rec.LastActiveRaw.(string); ok {
		out.LastActive = ParseTimestamp(s)
	}
	*u = out
	return nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// BanRecord gates all inbound processing for a user.
type BanRecord struct {
	UserID   int64     `json:"user_id"`
	BannedAt time.Time `json:"banned_at"`
	BannedBy int64     `json:"banned_by"`
	Reason   string    `json:"reason"`
}

func (r *BanRecord) UnmarshalJSON(b []byte) error {
	var rec struct {
		UserID   int64  `json:"user_id"`
		BannedAt string `json:"banned_at"`
		BannedBy int64  `json:"banned_by"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	*r = BanRecord{
		UserID:   rec.UserID,
		BannedAt: ParseTimestamp(rec.BannedAt),
		BannedBy: rec.BannedBy,
		Reason:   rec.Reason,
	}
	return nil
}
