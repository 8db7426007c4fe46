package storage

import (
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendJSON    = "json"
	BackendLevelDB = "leveldb"
)

// Open returns the Store for backend. path is the JSON file for "json" and
// the database directory for "leveldb"; it is ignored for "memory".
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendJSON, "":
		if path == "" {
			return nil, fmt.Errorf("json trust store requires a path")
		}
		return NewJSONFileStore(path)
	case BackendLevelDB:
		if path == "" {
			return nil, fmt.Errorf("leveldb trust store requires a path")
		}
		return NewLevelDBStore(path)
	default:
		return nil, fmt.Errorf("unknown trust backend %q", backend)
	}
}
