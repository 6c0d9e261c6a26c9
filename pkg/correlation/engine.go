// Package correlation maps user messages and staff messages onto the
// thread of the submission they belong to.
//
// Every relayed submission owns one thread. The thread records where the
// submission came from, where its staff copy went, and each reply round
// trip after that. Two indexes, one per side, resolve any recorded message
// back to its thread. Threads opened but not yet relayed are pending: they
// live in memory only and never resolve.
package correlation

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"relaybot/pkg/logger"
	"relaybot/pkg/models"
	"relaybot/pkg/store"
)

// Match is the result of resolving a message to its thread.
type Match struct {
	ThreadID string
	AuthorID int64
	TopicID  int64
	// Counterpart is the message on the other side that a relayed reply
	// should be threaded under.
	Counterpart models.MessageRef
}

type Engine struct {
	mu         sync.RWMutex
	st         *store.Store
	staffChat  int64
	threads    map[string]*models.Thread
	pending    map[string]*models.Thread
	order      []string
	staffIndex map[models.MessageRef]string
	userIndex  map[models.MessageRef]string
	clock      func() time.Time
}

// New creates an empty engine. staffChat is the chat assumed for
// staff-side ids of legacy records.
func New(st *store.Store, staffChat int64) *Engine {
	e := &Engine{st: st, staffChat: staffChat, clock: time.Now}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.threads = map[string]*models.Thread{}
	e.pending = map[string]*models.Thread{}
	e.order = nil
	e.staffIndex = map[models.MessageRef]string{}
	e.userIndex = map[models.MessageRef]string{}
}

// Load replaces all state with the stored table. Legacy records are
// upgraded and written back; never-relayed legacy records are dropped.
// The indexes are rebuilt in opening order so the earliest thread keeps
// a contested identifier.
func (e *Engine) Load() error {
	rows, err := store.LoadTable[json.RawMessage](e.st, store.TableThreads)
	if err != nil {
		return err
	}

	loaded := make([]*models.Thread, 0, len(rows))
	rewrite := false
	for id, raw := range rows {
		t, ok, derr := models.DecodeThread(id, raw, e.staffChat)
		if derr != nil {
			logger.Error("thread_decode_failed", "thread", id, "error", derr)
			rewrite = true
			continue
		}
		if !ok {
			logger.Warn("thread_dropped_unrelayed", "thread", id)
			rewrite = true
			continue
		}
		if !isCurrent(raw) {
			rewrite = true
		}
		t.SubmissionID = id
		loaded = append(loaded, t)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return openedBefore(loaded[i], loaded[j]) })

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	for _, t := range loaded {
		e.threads[t.SubmissionID] = t
		e.order = append(e.order, t.SubmissionID)
		e.indexThread(t)
	}
	logger.Info("threads_loaded", "count", len(loaded), "upgraded", rewrite)
	if rewrite {
		return e.flushLocked()
	}
	return nil
}

func isCurrent(raw json.RawMessage) bool {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.SchemaVersion >= models.ThreadSchemaVersion
}

// openedBefore orders by open time, then by relay id, which grows with
// time inside a chat and stands in for upgraded records with no open time.
func openedBefore(a, b *models.Thread) bool {
	if !a.OpenedAt.Equal(b.OpenedAt) {
		return a.OpenedAt.Before(b.OpenedAt)
	}
	if a.Relay.MessageID != b.Relay.MessageID {
		return a.Relay.MessageID < b.Relay.MessageID
	}
	return a.SubmissionID < b.SubmissionID
}

// indexThread adds every known identifier of t. A collision keeps the
// existing owner.
func (e *Engine) indexThread(t *models.Thread) {
	claim := func(idx map[models.MessageRef]string, side string, ref *models.MessageRef) {
		if ref == nil || ref.IsZero() {
			return
		}
		if owner, ok := idx[*ref]; ok && owner != t.SubmissionID {
			logger.Error("correlation_index_collision", "invariant", true, "side", side, "ref", ref.String(), "kept", owner, "dropped", t.SubmissionID)
			return
		}
		idx[*ref] = t.SubmissionID
	}
	claim(e.userIndex, "user", &t.Origin)
	claim(e.staffIndex, "staff", t.Relay)
	claim(e.staffIndex, "staff", t.RelayHeader)
	for i := range t.Links {
		l := &t.Links[i]
		claim(e.staffIndex, "staff", l.Outbound)
		claim(e.userIndex, "user", l.Inbound)
		if l.HeaderOnStaffSide() {
			claim(e.staffIndex, "staff", l.Header)
		} else {
			claim(e.userIndex, "user", l.Header)
		}
	}
}

// checkFree fails when a ref is already indexed on either side or appears
// twice in refs. Zero refs are ignored.
func (e *Engine) checkFree(op, id string, refs ...models.MessageRef) error {
	seen := make(map[models.MessageRef]bool, len(refs))
	for _, ref := range refs {
		if ref.IsZero() {
			continue
		}
		if seen[ref] {
			return invariant(op, id, fmt.Errorf("%w: %s given twice", ErrIdentifierCollision, ref))
		}
		seen[ref] = true
		if owner, ok := e.staffIndex[ref]; ok {
			return invariant(op, id, fmt.Errorf("%w: %s owned by %s", ErrIdentifierCollision, ref, owner))
		}
		if owner, ok := e.userIndex[ref]; ok {
			return invariant(op, id, fmt.Errorf("%w: %s owned by %s", ErrIdentifierCollision, ref, owner))
		}
	}
	return nil
}

func optional(ref models.MessageRef) *models.MessageRef {
	if ref.IsZero() {
		return nil
	}
	return &ref
}

// Open creates a pending thread for a submission about to be relayed.
func (e *Engine) Open(sub *models.Submission) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := sub.ID
	if _, ok := e.threads[id]; ok {
		return "", invariant("open", id, ErrDuplicateSubmission)
	}
	if _, ok := e.pending[id]; ok {
		return "", invariant("open", id, ErrDuplicateSubmission)
	}
	origin := models.MessageRef{ChatID: sub.AuthorID, MessageID: sub.OriginMessageID}
	if owner, ok := e.userIndex[origin]; ok {
		return "", invariant("open", id, fmt.Errorf("%w: origin %s owned by %s", ErrIdentifierCollision, origin, owner))
	}
	e.pending[id] = &models.Thread{
		SchemaVersion: models.ThreadSchemaVersion,
		SubmissionID:  id,
		AuthorID:      sub.AuthorID,
		Origin:        origin,
		Links:         []models.ReplyLink{},
		OpenedAt:      e.clock().UTC(),
	}
	return id, nil
}

// RecordRelay commits a pending thread with the id of its staff copy.
// header, unless zero, is a message sent ahead of the copy and resolves to
// the thread like the copy does. When the table cannot be written the
// thread goes back to pending and the error is returned.
func (e *Engine) RecordRelay(id string, relay, header models.MessageRef, topicID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.threads[id]; ok {
		return invariant("record_relay", id, ErrAlreadyRelayed)
	}
	t, ok := e.pending[id]
	if !ok {
		return invariant("record_relay", id, ErrUnknownThread)
	}
	if err := e.checkFree("record_relay", id, relay, header, t.Origin); err != nil {
		return err
	}

	r := relay
	t.Relay = &r
	t.RelayHeader = optional(header)
	t.TopicID = topicID
	delete(e.pending, id)
	e.threads[id] = t
	e.order = append(e.order, id)
	e.staffIndex[relay] = id
	if t.RelayHeader != nil {
		e.staffIndex[header] = id
	}
	e.userIndex[t.Origin] = id

	if err := e.flushLocked(); err != nil {
		delete(e.staffIndex, relay)
		delete(e.staffIndex, header)
		delete(e.userIndex, t.Origin)
		e.order = e.order[:len(e.order)-1]
		delete(e.threads, id)
		t.Relay, t.RelayHeader, t.TopicID = nil, nil, 0
		e.pending[id] = t
		return err
	}
	return nil
}

// Discard drops a pending thread after a failed dispatch. Committed
// threads are never touched.
func (e *Engine) Discard(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[id]; !ok {
		return false
	}
	delete(e.pending, id)
	return true
}

// ResolveByStaffMessage finds the thread owning a staff-side message.
func (e *Engine) ResolveByStaffMessage(ref models.MessageRef) (Match, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.staffIndex[ref]
	if !ok {
		return Match{}, false
	}
	t := e.threads[id]
	m := Match{ThreadID: id, AuthorID: t.AuthorID, TopicID: t.TopicID, Counterpart: t.Origin}
	if is(t.Relay, ref) || is(t.RelayHeader, ref) {
		return m, true
	}
	for _, l := range t.Links {
		if is(l.Outbound, ref) || (l.HeaderOnStaffSide() && is(l.Header, ref)) {
			// a link with no user-side id threads under the origin
			if l.Inbound != nil {
				m.Counterpart = *l.Inbound
			}
			return m, true
		}
	}
	return m, true
}

// ResolveByUserMessage finds the thread owning a user-side message.
func (e *Engine) ResolveByUserMessage(ref models.MessageRef) (Match, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.userIndex[ref]
	if !ok {
		return Match{}, false
	}
	t := e.threads[id]
	m := Match{ThreadID: id, AuthorID: t.AuthorID, TopicID: t.TopicID, Counterpart: *t.Relay}
	if t.Origin == ref {
		return m, true
	}
	for _, l := range t.Links {
		if is(l.Inbound, ref) || (!l.HeaderOnStaffSide() && is(l.Header, ref)) {
			if l.Outbound != nil {
				m.Counterpart = *l.Outbound
			}
			return m, true
		}
	}
	return m, true
}

func is(r *models.MessageRef, ref models.MessageRef) bool { return r != nil && *r == ref }

// RecordRoundTrip appends one reply link. outbound is the staff-side
// message and inbound the user-side one, whichever side wrote it. header,
// unless zero, was sent ahead of the delivered copy in the same chat. A
// failed write leaves the thread as it was.
func (e *Engine) RecordRoundTrip(id string, outbound, inbound, header models.MessageRef, dir models.Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.threads[id]
	if !ok {
		if _, pending := e.pending[id]; pending {
			return invariant("record_round_trip", id, ErrNotRelayed)
		}
		return invariant("record_round_trip", id, ErrUnknownThread)
	}
	if err := e.checkFree("record_round_trip", id, outbound, inbound, header); err != nil {
		return err
	}

	out, in := outbound, inbound
	link := models.ReplyLink{
		Outbound:   &out,
		Inbound:    &in,
		Header:     optional(header),
		Direction:  dir,
		RecordedAt: e.clock().UTC(),
	}
	headerIndex := e.userIndex
	if link.HeaderOnStaffSide() {
		headerIndex = e.staffIndex
	}
	t.Links = append(t.Links, link)
	e.staffIndex[outbound] = id
	e.userIndex[inbound] = id
	if link.Header != nil {
		headerIndex[header] = id
	}

	if err := e.flushLocked(); err != nil {
		t.Links = t.Links[:len(t.Links)-1]
		delete(e.staffIndex, outbound)
		delete(e.userIndex, inbound)
		if link.Header != nil {
			delete(headerIndex, header)
		}
		return err
	}
	return nil
}

// Thread returns a copy of a committed thread.
func (e *Engine) Thread(id string) (*models.Thread, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.threads[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Threads returns copies of all committed threads in opening order.
func (e *Engine) Threads() []*models.Thread {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.Thread, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.threads[id].Clone())
	}
	return out
}

func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.threads)
}

// ReplyCount returns the number of recorded reply links across all threads.
func (e *Engine) ReplyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, t := range e.threads {
		n += len(t.Links)
	}
	return n
}

func (e *Engine) flushLocked() error {
	if err := store.SaveTable(e.st, store.TableThreads, e.threads); err != nil {
		logger.Error("threads_flush_failed", "error", err)
		return err
	}
	return nil
}
