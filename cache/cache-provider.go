package cache

import (
	"sort"
	"sync"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent response
// snapshots, grouped into named generations. A generation is created
// implicitly by the first Put with its name and removed wholesale with
// Delete. A Put for an existing key overwrites the previous value
// (last write wins).
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the stored bytes for the key in the named generation.
	// It also returns a boolean indicating whether the entry exists.
	Get(name, key string) ([]byte, bool, error)
	// Put stores the given bytes under the key, creating the generation
	// if needed.
	Put(name, key string, bytes []byte) error
	// Has checks if the specified key exists in the named generation.
	Has(name, key string) bool
	// Keys calls the given callback for each key in the named generation.
	// It calls the callback in order to enable very large key sets to be
	// processable (provider implementation might use paging, for instance).
	Keys(name string, cb func(string))
	// Names returns the names of all generations present in the store.
	Names() ([]string, error)
	// Delete removes the named generation and all of its entries.
	Delete(name string) error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

// NewMemCache creates an empty in-memory cache.
func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemCache) Get(name, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[name][key]
	if !ok {
		return nil, false, nil
	}
	return entry, true, nil
}

func (m MemCache) Put(name, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	generation, ok := m.db[name]
	if !ok {
		generation = make(map[string][]byte)
		m.db[name] = generation
	}
	generation[key] = bytes
	return nil
}

func (m MemCache) Has(name, key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[name][key]
	return ok
}

func (m MemCache) Keys(name string, cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db[name]))
	for key := range m.db[name] {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
}

func (m MemCache) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemCache) Delete(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, name)
	return nil
}
