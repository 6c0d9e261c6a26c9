package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"relaybot/pkg/logger"
)

// Table names. They double as the on-disk document names.
const (
	TableSubmissions = "questions_data"
	TableThreads     = "replies_data"
	TableUsers       = "users_data"
	TableBans        = "banned_users"
)

// Tables lists every table in export order.
var Tables = []string{TableSubmissions, TableThreads, TableUsers, TableBans}

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrNotFound     = errors.New("table not found")
	ErrClosed       = errors.New("store closed")
)

// Backend owns the bytes of each table. Save replaces the whole document.
type Backend interface {
	Load(table string) ([]byte, error)
	Save(table string, data []byte) error
	Close() error
}

// KnownTable reports whether name is one of the four tables.
func KnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// Store is the explicit persistence handle passed to each domain cache.
type Store struct {
	backend Backend
}

func New(b Backend) *Store {
	return &Store{backend: b}
}

func (s *Store) Backend() Backend { return s.backend }

func (s *Store) Close() error { return s.backend.Close() }

// Raw returns the stored bytes of a table, or "{}" when it does not exist yet.
func (s *Store) Raw(table string) ([]byte, error) {
	if !KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	b, err := s.backend.Load(table)
	if errors.Is(err, ErrNotFound) {
		return []byte("{}"), nil
	}
	return b, err
}

// ReplaceRaw overwrites a table with data after checking it is a JSON object.
func (s *Store) ReplaceRaw(table string, data []byte) error {
	if !KnownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("table %s is not a JSON object: %w", table, err)
	}
	return s.backend.Save(table, data)
}

// LoadTable decodes a table keyed by string id. A missing table is empty;
// a malformed one is logged and treated as empty.
func LoadTable[T any](s *Store, table string) (map[string]T, error) {
	out := map[string]T{}
	b, err := s.Raw(table)
	if err != nil {
		return out, err
	}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		logger.Error("table_malformed", "table", table, "error", err)
		return map[string]T{}, nil
	}
	return out, nil
}

// SaveTable encodes and writes a full table.
func SaveTable[T any](s *Store, table string, rows map[string]T) error {
	if !KnownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	if err := s.backend.Save(table, b); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}
