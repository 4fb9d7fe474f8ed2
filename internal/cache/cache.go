package cache

import (
	"container/list"
	"hash/fnv"
	"strings"
	"sync"
)

// Cache is a bounded LRU cache of synthesized speech. A hit returns both the
// audio and the translated text that produced it, letting the dispatcher
// skip the translate call as well as the synthesize call.
type Cache struct {
	capacity int
	order    *list.List // front = most recently used
	items    map[uint64]*list.Element

	// Statistics
	hits      uint64
	misses    uint64
	evictions uint64

	mu sync.Mutex
}

type entry struct {
	key        uint64
	translated string
	audio      []byte
}

// Stats represents cache statistics.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// New creates a cache holding at most capacity entries. A capacity below one
// is raised to one so the cache never rejects its own inserts.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}

	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[uint64]*list.Element),
	}
}

// Get looks up synthesized audio for the source text, target language and
// voice. A hit marks the entry as most recently used.
func (c *Cache) Get(text, language, voice string) (audio []byte, translated string, ok bool) {
	key := keyFor(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[key]
	if !found {
		c.misses++
		return nil, "", false
	}

	c.order.MoveToFront(elem)
	c.hits++

	e := elem.Value.(*entry)
	return e.audio, e.translated, true
}

// Put stores synthesized audio under the source text, target language and
// voice, evicting the least recently used entry when the cache is full.
func (c *Cache) Put(text, language, voice, translated string, audio []byte) {
	key := keyFor(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.translated = translated
		e.audio = audio
		return
	}

	elem := c.order.PushFront(&entry{key: key, translated: translated, audio: audio})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
			c.evictions++
		}
	}
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:      c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// keyFor hashes the normalized (text, language, voice) tuple into a stable
// cache key.
func keyFor(text, language, voice string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(normalize(text)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(language)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(voice)))
	return h.Sum64()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
