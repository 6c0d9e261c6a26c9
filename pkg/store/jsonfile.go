package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps each table in <dir>/<table>.json. Writes go to a temp
// file in the same directory and are renamed into place.
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

func OpenFiles(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(table string) string {
	return filepath.Join(f.dir, table+".json")
}

func (f *FileBackend) Load(table string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path(table))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileBackend) Save(table string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+table+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path(table))
}

func (f *FileBackend) Close() error { return nil }
