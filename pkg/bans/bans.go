// Package bans keeps the set of users whose messages the bot refuses.
package bans

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"relaybot/pkg/logger"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
)

// DefaultReason is recorded when a ban is issued without one.
const DefaultReason = "no reason given"

var (
	ErrAlreadyBanned = errors.New("user already banned")
	ErrNotBanned     = errors.New("user not banned")
)

type Registry struct {
	mu    sync.RWMutex
	st    *store.Store
	rows  map[string]models.BanRecord
	clock func() time.Time
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{st: st, rows: map[string]models.BanRecord{}, clock: time.Now}
}

// Load replaces the cache with the stored table.
func (r *Registry) Load() error {
	rows, err := store.LoadTable[models.BanRecord](r.st, store.TableBans)
	if err != nil {
		return err
	}
	for k, v := range rows {
		if v.UserID == 0 {
			if id, perr := strconv.ParseInt(k, 10, 64); perr == nil {
				v.UserID = id
				rows[k] = v
			}
		}
	}
	r.mu.Lock()
	r.rows = rows
	r.mu.Unlock()
	logger.Debug("bans_loaded", "count", len(rows))
	return nil
}

func (r *Registry) IsBanned(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rows[strconv.FormatInt(userID, 10)]
	return ok
}

// Ban records a ban. Banning twice returns ErrAlreadyBanned and leaves
// the first record in place.
func (r *Registry) Ban(userID, bannedBy int64, reason string) (models.BanRecord, error) {
	if reason == "" {
		reason = DefaultReason
	}
	key := strconv.FormatInt(userID, 10)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[key]; ok {
		return existing, ErrAlreadyBanned
	}
	rec := models.BanRecord{UserID: userID, BannedAt: r.clock().UTC(), BannedBy: bannedBy, Reason: reason}
	r.rows[key] = rec
	if err := store.SaveTable(r.st, store.TableBans, r.rows); err != nil {
		delete(r.rows, key)
		return models.BanRecord{}, err
	}
	logger.AuditEvent("user_banned", "user_id", userID, "by", bannedBy, "reason", reason)
	return rec, nil
}

// Unban deletes a ban. An unknown user yields ErrNotBanned and no write.
func (r *Registry) Unban(userID, by int64) error {
	key := strconv.FormatInt(userID, 10)

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[key]
	if !ok {
		return ErrNotBanned
	}
	delete(r.rows, key)
	if err := store.SaveTable(r.st, store.TableBans, r.rows); err != nil {
		r.rows[key] = rec
		return err
	}
	logger.AuditEvent("user_unbanned", "user_id", userID, "by", by)
	return nil
}

// List returns every ban ordered by ban time.
func (r *Registry) List() []models.BanRecord {
	r.mu.RLock()
	out := make([]models.BanRecord, 0, len(r.rows))
	for _, v := range r.rows {
		out = append(out, v)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].BannedAt.Equal(out[j].BannedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].BannedAt.Before(out[j].BannedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
