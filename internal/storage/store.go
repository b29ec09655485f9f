package storage

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrKeyNotFound is returned when no row is stored under a key.
var ErrKeyNotFound = errors.New("key not found")

// Store holds the rows of one hosted catalog region. Keys are the names of
// the regions the rows describe and values are encoded catalog rows, so
// List order is region-name order.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the encoded row stored under key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Put stores an encoded row, replacing the previous row for key.
	Put(key string, value []byte) error

	// Delete removes the row for key. Removing a missing row succeeds.
	Delete(key string) error

	// List returns every key in ascending order; a region scan walks it.
	List() ([]string, error)

	// Stats reports how many rows are stored and their encoded size.
	Stats() (StoreStats, error)

	// Close releases the backend. The store is unusable afterwards.
	Close() error
}

// StoreStats is the size of a region's row set.
type StoreStats struct {
	Keys  int `json:"keys"`  // Number of rows
	Bytes int `json:"bytes"` // Encoded size of all rows
}

// MemoryStore keeps a region's rows in a map. Rows do not survive a
// restart, which suits region servers whose catalog is rebuilt on startup
// and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte // region name -> encoded row
}

// NewMemoryStore returns an empty in-memory row store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get returns a copy of the encoded row. A row stored as nil reads back
// as an empty, non-nil slice.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores a copy of the encoded row under key.
func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete removes the row for key.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// List returns the row keys in region-name order.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}

// Stats counts the stored rows and their encoded bytes.
func (m *MemoryStore) Stats() (StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := StoreStats{Keys: len(m.data)}
	for _, value := range m.data {
		stats.Bytes += len(value)
	}
	return stats, nil
}

// Close is a no-op; the rows stay readable until the store is dropped.
func (m *MemoryStore) Close() error {
	return nil
}
