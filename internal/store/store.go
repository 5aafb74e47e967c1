// Package store is the persistence collaborator for the mesh core: identity
// key material and the joined-channel list live behind a small key/value
// interface the host injects. The core never touches storage formats itself.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound means the key has never been stored.
var ErrNotFound = errors.New("value not found")

// Store is the injected persistence interface.
type Store interface {
	Store(key string, value []byte) error
	Retrieve(key string) ([]byte, error)
	Delete(key string) error
}

// Local is an in-memory store, used by tests and as a throwaway default.
type Local struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewLocal creates an empty in-memory store.
func NewLocal() *Local {
	return &Local{
		data: make(map[string][]byte),
	}
}

func (s *Local) Store(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Local) Retrieve(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if value, ok := s.data[key]; ok {
		return append([]byte(nil), value...), nil
	}
	return nil, ErrNotFound
}

func (s *Local) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Dir persists each key as a file under a directory, with 0600 permissions
// since identity seeds live here.
type Dir struct {
	root string
	mu   sync.Mutex
}

// NewDir creates the directory if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, err
	}
	return &Dir{root: root}, nil
}

func (s *Dir) path(key string) string {
	// Keys use "/" as a namespace separator; flatten for the filesystem.
	return filepath.Join(s.root, strings.ReplaceAll(key, "/", "_"))
}

func (s *Dir) Store(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path(key), value, 0600)
}

func (s *Dir) Retrieve(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *Dir) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
