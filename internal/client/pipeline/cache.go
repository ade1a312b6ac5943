package pipeline

import (
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheEntry is a stored 2xx GET response.
type CacheEntry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Cache stores responses by request key.
type Cache interface {
	Get(key string) (CacheEntry, bool)
	Put(key string, e CacheEntry)
	Purge()
	Len() int
}

// LRUCache is a size-bounded in-memory Cache.
type LRUCache struct {
	c *lru.Cache[string, CacheEntry]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, CacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{c: c}, nil
}

func (l *LRUCache) Get(key string) (CacheEntry, bool) { return l.c.Get(key) }
func (l *LRUCache) Put(key string, e CacheEntry)      { l.c.Add(key, e) }
func (l *LRUCache) Purge()                            { l.c.Purge() }
func (l *LRUCache) Len() int                          { return l.c.Len() }
