package vision

import (
	"bytes"
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultTTL        = 24 * time.Hour
	defaultMaxEntries = 256
	indexFile         = "cache_index.json"
	entriesDir        = "entries"
)

// Key identifies an image by the SHA-256 of its bytes plus its pixel
// dimensions. Undecodable images get 0x0.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	w, h := 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		w, h = cfg.Width, cfg.Height
	}
	return fmt.Sprintf("%s_%dx%d", hex.EncodeToString(sum[:]), w, h)
}

// CacheOptions configures a Cache. A zero Dir keeps the cache in memory.
// Now drives entry ages, so expiry follows it rather than the wall clock.
type CacheOptions struct {
	Dir        string
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

type indexEntry struct {
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	Hits       int       `json:"hits"`
}

type cacheIndex struct {
	Entries []indexEntry `json:"entries"`
}

type storedEntry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Analysis  Analysis  `json:"analysis"`
}

// Cache is a size-bounded LRU of analyses with TTL expiry. Entries and a
// cache_index.json metadata file are persisted when a directory is set.
type Cache struct {
	dir   string
	ttl   time.Duration
	max   int
	now   func() time.Time
	items *cache.Cache

	mu     sync.Mutex
	order  *list.List // front is most recently used; values are *indexEntry
	byKey  map[string]*list.Element
	hits   int
	misses int
}

// NewCache creates a cache, reloading unexpired persisted entries.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		dir:   opts.Dir,
		ttl:   opts.TTL,
		max:   opts.MaxEntries,
		now:   opts.Now,
		items: cache.New(opts.TTL, opts.TTL/2),
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
	if c.dir == "" {
		return c, nil
	}
	if err := os.MkdirAll(filepath.Join(c.dir, entriesDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a cached analysis and marks it as recently used.
func (c *Cache) Get(key string) (Analysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items.Get(key)
	el, tracked := c.byKey[key]
	if ok && tracked && c.expired(el.Value.(*indexEntry)) {
		ok = false
	}
	if !ok {
		if tracked {
			c.remove(el)
		}
		c.misses++
		return Analysis{}, false
	}
	if tracked {
		e := el.Value.(*indexEntry)
		e.LastAccess = c.now()
		e.Hits++
		c.order.MoveToFront(el)
	}
	c.hits++
	return v.(Analysis), true
}

// Put stores an analysis, evicting the least recently used entries beyond
// the size bound, and rewrites the index.
func (c *Cache) Put(key string, a Analysis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items.Set(key, a, cache.DefaultExpiration)
	if el, ok := c.byKey[key]; ok {
		e := el.Value.(*indexEntry)
		e.CreatedAt, e.LastAccess = now, now
		c.order.MoveToFront(el)
	} else {
		c.byKey[key] = c.order.PushFront(&indexEntry{Key: key, CreatedAt: now, LastAccess: now})
	}
	c.prune()

	if c.dir == "" {
		return nil
	}
	b, err := json.Marshal(storedEntry{Key: key, CreatedAt: now, Analysis: a})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := os.WriteFile(c.entryPath(key), b, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return c.writeIndex()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return c.order.Len()
}

// Stats returns hit and miss counts since the cache was created.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// prune drops expired entries and then the oldest entries over the bound.
// Callers hold c.mu.
func (c *Cache) prune() {
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*indexEntry)
		if _, ok := c.items.Get(e.Key); !ok || c.expired(e) {
			c.remove(el)
		}
		el = prev
	}
	for c.order.Len() > c.max {
		c.remove(c.order.Back())
	}
}

func (c *Cache) expired(e *indexEntry) bool {
	return c.now().Sub(e.CreatedAt) >= c.ttl
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*indexEntry)
	c.order.Remove(el)
	delete(c.byKey, e.Key)
	c.items.Delete(e.Key)
	if c.dir != "" {
		if err := os.Remove(c.entryPath(e.Key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("removing cache entry failed", "key", e.Key, "error", err)
		}
	}
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, entriesDir, key+".json")
}

// writeIndex rewrites cache_index.json, most recent first. Callers hold c.mu.
func (c *Cache) writeIndex() error {
	idx := cacheIndex{Entries: make([]indexEntry, 0, c.order.Len())}
	for el := c.order.Front(); el != nil; el = el.Next() {
		idx.Entries = append(idx.Entries, *el.Value.(*indexEntry))
	}
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	tmp := filepath.Join(c.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing cache index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, indexFile)); err != nil {
		return fmt.Errorf("replacing cache index: %w", err)
	}
	return nil
}

// load restores persisted entries that are still within the TTL.
func (c *Cache) load() error {
	b, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache index: %w", err)
	}
	var idx cacheIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		slog.Warn("ignoring corrupt vision cache index", "error", err)
		return nil
	}

	now := c.now()
	// Walk oldest first so the most recent entry ends up at the front.
	for i := len(idx.Entries) - 1; i >= 0; i-- {
		e := idx.Entries[i]
		remaining := c.ttl - now.Sub(e.CreatedAt)
		if remaining <= 0 {
			_ = os.Remove(c.entryPath(e.Key))
			continue
		}
		raw, err := os.ReadFile(c.entryPath(e.Key))
		if err != nil {
			slog.Warn("skipping unreadable cache entry", "key", e.Key, "error", err)
			continue
		}
		var se storedEntry
		if err := json.Unmarshal(raw, &se); err != nil {
			slog.Warn("skipping corrupt cache entry", "key", e.Key, "error", err)
			continue
		}
		c.items.Set(e.Key, se.Analysis, remaining)
		c.byKey[e.Key] = c.order.PushFront(&e)
	}
	c.prune()
	return c.writeIndex()
}
