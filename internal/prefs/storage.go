package prefs

import (
	"os"
	"path/filepath"
	"sync"
)

// Storage is the durable key-value persistence consumed by the Store. Read
// reports absence with (nil, nil); malformed previous writes are handled by
// the Store's default-merge, not here.
type Storage interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// FileStorage persists the settings record as a single JSON file.
type FileStorage struct {
	path string
}

// NewFileStorage creates the parent directory if needed.
func NewFileStorage(path string) (*FileStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileStorage{path: path}, nil
}

// Read returns the persisted bytes, or (nil, nil) on first run.
func (f *FileStorage) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Write replaces the persisted record. Written via a temp file and rename so
// a crash mid-write cannot leave a truncated record.
func (f *FileStorage) Write(data []byte) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// MemoryStorage is an in-process Storage for tests and ephemeral runs.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStorage returns empty storage (first-run state).
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

// Read returns the stored bytes, nil when nothing was written yet.
func (m *MemoryStorage) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// Write replaces the stored bytes.
func (m *MemoryStorage) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}
