package storage

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// scorePrefix namespaces trust entries inside the database.
var scorePrefix = []byte("trust/")

// LevelDBStore persists the trust table in a LevelDB database directory.
// Each identity is one key; the score is stored as a decimal string.
type LevelDBStore struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	closed bool
}

// NewLevelDBStore opens or creates the database at dir.
func NewLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{
		// The table holds a handful of small entries
		BlockCacheCapacity: 1 << 20,
		WriteBuffer:        1 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func scoreKey(key string) []byte {
	return append(append([]byte{}, scorePrefix...), key...)
}

// Get returns the score for key
func (s *LevelDBStore) Get(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	raw, err := s.db.Get(scoreKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, ErrKeyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", key, err)
	}
	score, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt score for %q: %w", key, err)
	}
	return score, nil
}

// Put writes the score for key with a synced write
func (s *LevelDBStore) Put(key string, score int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.db.Put(scoreKey(key), []byte(strconv.Itoa(score)), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// List iterates every trust entry
func (s *LevelDBStore) List() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]int)
	iter := s.db.NewIterator(util.BytesPrefix(scorePrefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Key()[len(scorePrefix):])
		score, err := strconv.Atoi(string(iter.Value()))
		if err != nil {
			return nil, fmt.Errorf("corrupt score for %q: %w", key, err)
		}
		out[key] = score
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate trust table: %w", err)
	}
	return out, nil
}

// Close closes the database
func (s *LevelDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
