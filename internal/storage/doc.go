// Package storage provides the persistence backends behind the trust table:
// a durable mapping from worker identity to integer score.
//
// # Overview
//
// The trust layer (package trust) owns the scoring rules and the locking
// discipline. This package only stores and returns numbers, so the backend
// can be swapped without touching the coordinator.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          trust.Manager              │
//	│   (clamping, read-modify-write)     │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          storage.Store              │
//	│     Get / Put / List / Close        │
//	└─────────────────────────────────────┘
//	                 │
//	    ┌────────────┼────────────┐
//	    ▼            ▼            ▼
//	┌────────┐  ┌────────┐  ┌─────────┐
//	│ Memory │  │  JSON  │  │ LevelDB │
//	│ Store  │  │  File  │  │  Store  │
//	└────────┘  └────────┘  └─────────┘
//
// # Implementations
//
// MemoryStore: map guarded by sync.RWMutex
//   - No persistence (scores reset on restart)
//   - Used by tests and the "memory" backend
//
// JSONFileStore: one JSON object {"10.0.0.5": 2, ...}
//   - Re-read on every call, so manual edits between runs are honoured
//   - Written via temp file and rename
//
// LevelDBStore: goleveldb database directory
//   - One key per identity under the "trust/" prefix
//   - Synced writes
//
// # Errors
//
//   - ErrKeyNotFound: identity has no entry yet
//   - ErrClosed: the store has been closed
//
// Any other error means the backend itself failed; callers treat it as the
// store being unavailable.
//
// # Usage
//
//	store, err := storage.Open(storage.BackendLevelDB, "data/trust.db")
//	if err != nil {
//	    log.Fatalf("open trust store: %v", err)
//	}
//	defer store.Close()
package storage
