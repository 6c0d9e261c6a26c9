package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"relaybot/pkg/logger"
)

const tableKeyPrefix = "table:"

// PebbleBackend stores each table document under key "table:<name>".
type PebbleBackend struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Load(table string) ([]byte, error) {
	if p.db == nil {
		return nil, ErrClosed
	}
	v, closer, err := p.db.Get([]byte(tableKeyPrefix + table))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pebble get %s: %w", table, err)
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *PebbleBackend) Save(table string, data []byte) error {
	if p.db == nil {
		return ErrClosed
	}
	return p.db.Set([]byte(tableKeyPrefix+table), data, pebble.Sync)
}

func (p *PebbleBackend) Ready() bool { return p.db != nil }

func (p *PebbleBackend) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Flush(); err != nil {
		logger.Error("pebble_flush_failed", "error", err)
	}
	err := p.db.Close()
	p.db = nil
	return err
}
