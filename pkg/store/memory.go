package store

import "sync"

// MemoryBackend keeps tables in process memory. Used by tests and the
// "memory" storage mode.
type MemoryBackend struct {
	mu     sync.Mutex
	tables map[string][]byte
	saves  map[string]int
	// FailSave makes every Save return this error when set.
	FailSave error
}

func NewMemory() *MemoryBackend {
	return &MemoryBackend{tables: map[string][]byte{}, saves: map[string]int{}}
}

func (m *MemoryBackend) Load(table string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.tables[table]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryBackend) Save(table string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.tables[table] = cp
	m.saves[table]++
	return nil
}

// Saves returns how many times table was written.
func (m *MemoryBackend) Saves(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[table]
}

func (m *MemoryBackend) Close() error { return nil }
