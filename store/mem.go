package store

import "sync"

var _ Store = (*MemStore)(nil)

// MemStore keeps everything in a map. It is what a node uses when no data
// directory is configured.
type MemStore struct {
	mtx  sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
	}
}

func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	value, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(value), nil
}

func (s *MemStore) Put(key, value []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.data[string(key)] = copyBytes(value)
	return nil
}

func (s *MemStore) Has(key []byte) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *MemStore) Len() (int, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.data), nil
}

func (s *MemStore) Close() error { return nil }

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
