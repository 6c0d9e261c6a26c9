package users

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"relaybot/pkg/models"
	"relaybot/pkg/store"
)

// Profile carries the sender fields observed on an incoming message.
type Profile struct {
	UserID      int64
	DisplayName string
	Handle      string
}

type Tracker struct {
	mu    sync.RWMutex
	st    *store.Store
	rows  map[string]models.KnownUser
	clock func() time.Time
}

func NewTracker(st *store.Store) *Tracker {
	return &Tracker{st: st, rows: map[string]models.KnownUser{}, clock: time.Now}
}

func (t *Tracker) Load() error {
	rows, err := store.LoadTable[models.KnownUser](t.st, store.TableUsers)
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
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()
	return nil
}

// Touch creates the user on first sight and bumps last-active and the
// message counter otherwise. Profile fields are refreshed when present.
func (t *Tracker) Touch(p Profile) (models.KnownUser, error) {
	key := strconv.FormatInt(p.UserID, 10)
	now := t.clock().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.rows[key]
	if !ok {
		u = models.KnownUser{UserID: p.UserID, FirstSeen: now}
	}
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.Handle != "" {
		u.Handle = p.Handle
	}
	u.LastActive = now
	u.MessageCount++
	t.rows[key] = u
	if err := store.SaveTable(t.st, store.TableUsers, t.rows); err != nil {
		return u, err
	}
	return u, nil
}

func (t *Tracker) Get(userID int64) (models.KnownUser, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.rows[strconv.FormatInt(userID, 10)]
	return u, ok
}

// IDs returns every known user id in ascending order.
func (t *Tracker) IDs() []int64 {
	t.mu.RLock()
	out := make([]int64, 0, len(t.rows))
	for _, u := range t.rows {
		out = append(out, u.UserID)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// ActiveSince counts users active at or after since.
func (t *Tracker) ActiveSince(since time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, u := range t.rows {
		if !u.LastActive.Before(since) {
			n++
		}
	}
	return n
}
