package linesearch

import (
	"fmt"
	"sync"
)

// Store abstracts persistence of query logs.
//
// Mutations (Append, Update, Delete) are serialized on a single exclusive
// lock. ListAll does not take that lock and may observe a partial view while
// a rewrite is in progress.
type Store interface {
	Append(rec LogRecord) error
	ListAll() ([]LogRecord, error)
	Update(id string, fields map[string]any) (bool, error)
	Delete(id string) (bool, error)
	Close() error
}

// Store backends accepted by OpenStore.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// OpenStore opens the store backend named by backend. path is the JSON-lines
// file for BackendFile and the DSN for BackendSQLite; it is ignored for
// BackendMemory.
func OpenStore(backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return OpenFileStore(path)
	case BackendSQLite:
		return OpenSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidArgument, backend)
	}
}

// memoryStore is an in-process Store, used as a test double and for
// ephemeral deployments.
type memoryStore struct {
	mu   sync.RWMutex
	recs []LogRecord
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Append(rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memoryStore) ListAll() ([]LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogRecord, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *memoryStore) Update(id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recs {
		if s.recs[i].ID != id {
			continue
		}
		rec := s.recs[i]
		if err := applyFields(&rec, fields); err != nil {
			return false, err
		}
		s.recs[i] = rec
		return true, nil
	}
	return false, nil
}

func (s *memoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.recs[:0:0]
	for _, r := range s.recs {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(s.recs) {
		return false, nil
	}
	s.recs = kept
	return true, nil
}

func (*memoryStore) Close() error { return nil }
