package localstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Fixed keys for the editor's persisted state, kept stable so the file
// survives upgrades the way browser-local storage keys do.
const (
	KeyShareToken   = "lumilearn_share_token"
	KeyShareEnabled = "lumilearn_share_enabled"
	KeyHeroCover    = "lumilearn_hero_cover"
	KeyCourses      = "lumilearn_courses_v2"
)

// Store is a durable per-editor key-value store. Implementations must
// keep Set atomic so a crash never leaves a half-written state behind.
type Store interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte) error
	Delete(key string) error
}

// FileStore keeps all keys in a single JSON file, replaced atomically
// on every write.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: map[string]json.RawMessage{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(data, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(key string) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return nil, false
	}
	var v []byte
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	return s.flush()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

func (s *FileStore) flush() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore is a non-durable Store for tests and previews.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string][]byte{}}
}

func (s *MemoryStore) Get(key string) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), stored...), true
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
