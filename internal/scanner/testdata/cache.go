package cache

import "sync"

// Store is implemented by every cache backend.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	sizer
}

type sizer interface {
	Len() int
}

// Cache is an in-memory Store.
type Cache struct {
	sync.Mutex
	Name    string
	entries map[string][]byte
	hits, misses int
}

type Mode int

func New(name string) *Cache {
	return &Cache{Name: name, entries: make(map[string][]byte)}
}

func Open(path string, opts ...string) (*Cache, error) {
	return nil, nil
}

func helper() {}

func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) Put(key string, value []byte) error { return nil }

func (c Cache) Len() int { return len(c.entries) }

func (c *Cache) evict() {}
