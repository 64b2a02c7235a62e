package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/prperemyshlev/blog-auth-service/internal/domain"
)

// Store holds the credential pair of the current session
type Store interface {
	// Get returns the stored pair and whether a session exists
	Get() (domain.TokenPair, bool)
	Set(pair domain.TokenPair) error
	Clear() error
}

// MemoryStore keeps credentials for the lifetime of the process
type MemoryStore struct {
	mu   sync.RWMutex
	pair *domain.TokenPair
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (domain.TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return domain.TokenPair{}, false
	}
	return *s.pair, true
}

func (s *MemoryStore) Set(pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = &pair
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = nil
	return nil
}

// FileStore persists credentials as a JSON file readable only by the owner.
// Init must be called before use to load a previously saved session.
type FileStore struct {
	path string

	mu   sync.RWMutex
	pair *domain.TokenPair
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Init loads the persisted session. A missing file means no session.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.pair = nil
			return nil
		}
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	var pair domain.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		s.pair = nil
		return fmt.Errorf("failed to decode credentials %s: %w", s.path, err)
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		s.pair = nil
		return nil
	}

	s.pair = &pair
	return nil
}

func (s *FileStore) Get() (domain.TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return domain.TokenPair{}, false
	}
	return *s.pair, true
}

// Set replaces the session and writes it to disk atomically
func (s *FileStore) Set(pair domain.TokenPair) error {
	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.pair = &pair
	return nil
}

// Clear forgets the session and removes the file
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}
