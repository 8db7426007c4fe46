package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileStore keeps the trust table as a single JSON object on disk,
// mapping identity to score. The file is re-read on every call, so edits
// made between runs are picked up, and rewritten through a temp file and
// rename so a crash never leaves a half-written table.
type JSONFileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewJSONFileStore opens (creating if needed) the JSON table at path.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trust dir: %w", err)
		}
	}
	s := &JSONFileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(map[string]int{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat trust file: %w", err)
	}
	return s, nil
}

// Get reads the file and returns the score for key
func (s *JSONFileStore) Get(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	scores, err := s.read()
	if err != nil {
		return 0, err
	}
	score, ok := scores[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	return score, nil
}

// Put rewrites the file with key set to score
func (s *JSONFileStore) Put(key string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	scores, err := s.read()
	if err != nil {
		return err
	}
	scores[key] = score
	return s.write(scores)
}

// List returns the whole table
func (s *JSONFileStore) List() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.read()
}

// Close marks the store closed
func (s *JSONFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *JSONFileStore) read() (map[string]int, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read trust file: %w", err)
	}
	scores := make(map[string]int)
	if len(raw) == 0 {
		return scores, nil
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("parse trust file %s: %w", s.path, err)
	}
	return scores, nil
}

func (s *JSONFileStore) write(scores map[string]int) error {
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode trust file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".trust-*.json")
	if err != nil {
		return fmt.Errorf("create temp trust file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp trust file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp trust file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace trust file: %w", err)
	}
	return nil
}
