// Package state persists reading positions under the XDG state directory,
// keyed by a hash of the file's leading bytes.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	appName       = "leaf"
	stateFileName = "positions.json"
	hashBytes     = 8192 // leading bytes used for file identity
)

// Position is a reading position that survives reflow: a chapter and a page
// within it.
type Position struct {
	Chapter       int       `json:"chapter"`
	PageInChapter int       `json:"page_in_chapter"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store manages persistent reading positions.
type Store struct {
	path string
	data map[string]Position
	mu   sync.RWMutex
}

// NewStore creates or loads the store at Dir()/positions.json. A corrupt file
// is replaced on the next save.
func NewStore() (*Store, error) {
	return Open(Dir())
}

// Open creates or loads a store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &Store{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]Position),
	}
	if err := s.load(); err != nil {
		s.data = make(map[string]Position)
	}
	return s, nil
}

// Dir returns XDG_STATE_HOME/leaf or ~/.local/state/leaf.
func Dir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

// ComputeHash returns a 32 hex character identity for a file's content.
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", filename, err)
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("hash %s: %w", filename, err)
	}

	sum := sha256.Sum256(buf[:n])
	return hex.EncodeToString(sum[:16]), nil
}

// Position returns the saved position for hash.
func (s *Store) Position(hash string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[hash]
	return p, ok
}

// SetPosition saves the position for hash.
func (s *Store) SetPosition(hash string, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.data[hash] = p
	return s.save()
}

// Clear removes the saved position for hash.
func (s *Store) Clear(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, hash)
	return s.save()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}
