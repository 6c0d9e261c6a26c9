package store

import (
	"errors"
	"fmt"
)

// Open builds a Store for the configured backend name.
func Open(backend, tablesDir, pebbleDir string) (*Store, error) {
	switch backend {
	case "", "json":
		b, err := OpenFiles(tablesDir)
		if err != nil {
			return nil, err
		}
		return New(b), nil
	case "pebble":
		b, err := OpenPebble(pebbleDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", pebbleDir, err)
		}
		return New(b), nil
	case "memory":
		return New(NewMemory()), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// Copy writes every table of src into dst. Missing tables are skipped.
func Copy(dst, src *Store) (int, error) {
	n := 0
	for _, t := range Tables {
		b, err := src.backend.Load(t)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("read %s: %w", t, err)
		}
		if err := dst.backend.Save(t, b); err != nil {
			return n, fmt.Errorf("write %s: %w", t, err)
		}
		n++
	}
	return n, nil
}
