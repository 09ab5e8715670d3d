package cache

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-process maps. Safe for concurrent use;
// fetch interceptions run unordered relative to each other.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string]map[string]Entry),
	}
}

// Get retrieves the entry for key if the namespace and key exist.
func (s *MemoryStore) Get(ctx context.Context, namespace, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return Entry{}, false, nil
	}
	e, ok := ns[key]
	return e, ok, nil
}

// Put stores the entry, creating the namespace on first write.
func (s *MemoryStore) Put(ctx context.Context, namespace, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Entry)
		s.namespaces[namespace] = ns
	}
	ns[key] = e
	return nil
}

// Keys lists the keys in the namespace; empty slice if it does not exist.
func (s *MemoryStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.namespaces[namespace]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	return keys, nil
}

// Namespaces lists every namespace that has been created.
func (s *MemoryStore) Namespaces(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	return names, nil
}

// DeleteNamespace removes the namespace and all its entries.
func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}
