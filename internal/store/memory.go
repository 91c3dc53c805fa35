package store

import "sync"

// MemStore is an in-memory Store used by tests and by callers that want
// a throwaway state directory.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Load returns the blob saved under name, or (nil, nil) if absent.
func (s *MemStore) Load(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save stores a copy of data under name.
func (s *MemStore) Save(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(data))
	copy(out, data)
	s.blobs[name] = out
	return nil
}
