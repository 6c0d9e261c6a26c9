// Package submissions keeps the submission table in memory and flushes it
// in full on every mutation.
package submissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"relaybot/pkg/logger"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
)

var ErrDuplicateID = errors.New("submission id already exists")

type Archive struct {
	mu   sync.RWMutex
	st   *store.Store
	rows map[string]*models.Submission
}

func NewArchive(st *store.Store) *Archive {
	return &Archive{st: st, rows: map[string]*models.Submission{}}
}

// Load replaces the cache with the stored table. Rows that fail to decode
// are skipped; a row without an id takes its key.
func (a *Archive) Load() error {
	raw, err := store.LoadTable[json.RawMessage](a.st, store.TableSubmissions)
	if err != nil {
		return err
	}
	rows := make(map[string]*models.Submission, len(raw))
	for key, rec := range raw {
		sub, err := decode(key, rec)
		if err != nil {
			logger.Warn("submission_row_skipped", "id", key, "error", err)
			continue
		}
		rows[key] = sub
	}
	a.mu.Lock()
	a.rows = rows
	a.mu.Unlock()
	return nil
}

func decode(key string, rec json.RawMessage) (*models.Submission, error) {
	var sub models.Submission
	if err := json.Unmarshal(rec, &sub); err != nil {
		// retry with the key as id
		var m map[string]any
		if jerr := json.Unmarshal(rec, &m); jerr != nil {
			return nil, err
		}
		m["id"] = key
		b, _ := json.Marshal(m)
		if err := json.Unmarshal(b, &sub); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

// Add records a new submission and flushes the table. The cache keeps the
// row even when the flush fails; the error is returned.
func (a *Archive) Add(sub *models.Submission) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("submission without id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rows[sub.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, sub.ID)
	}
	a.rows[sub.ID] = sub
	return a.flush()
}

func (a *Archive) flush() error {
	return store.SaveTable(a.st, store.TableSubmissions, a.rows)
}

func (a *Archive) Get(id string) (*models.Submission, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.rows[id]
	return s, ok
}

func (a *Archive) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows)
}

// All returns every submission oldest first. Ties break on id.
func (a *Archive) All() []*models.Submission {
	a.mu.RLock()
	out := make([]*models.Submission, 0, len(a.rows))
	for _, s := range a.rows {
		out = append(out, s)
	}
	a.mu.RUnlock()
	sortOldestFirst(out)
	return out
}

// Since returns submissions created at or after t, oldest first.
func (a *Archive) Since(t time.Time) []*models.Submission {
	all := a.All()
	i := sort.Search(len(all), func(i int) bool { return !all[i].CreatedAt.Before(t) })
	return all[i:]
}

// ByAuthor returns the author's submissions newest first, at most limit
// when limit > 0.
func (a *Archive) ByAuthor(userID int64, limit int) []*models.Submission {
	a.mu.RLock()
	var out []*models.Submission
	for _, s := range a.rows {
		if s.AuthorID == userID {
			out = append(out, s)
		}
	}
	a.mu.RUnlock()
	sortOldestFirst(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats summarises the archive.
type Stats struct {
	Total   int
	Authors int
	ByKind  map[models.Kind]int
}

func (a *Archive) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := Stats{Total: len(a.rows), ByKind: map[models.Kind]int{}}
	authors := map[int64]struct{}{}
	for _, s := range a.rows {
		authors[s.AuthorID] = struct{}{}
		st.ByKind[s.Kind()]++
	}
	st.Authors = len(authors)
	return st
}

func sortOldestFirst(s []*models.Submission) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.Before(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
