package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruCache struct {
	mu                 sync.Mutex
	maxEntriesPerScope int
	// scopeLists maps scopeKey -> LRU list of *Entry (front = most recent)
	scopeLists map[string]*list.List
	// elements maps entryKey -> *list.Element for O(1) lookup
	elements map[string]*list.Element
}

// NewLRU returns a Cache backed by a per-scope LRU eviction policy.
// maxEntriesPerScope is the maximum number of entries retained per
// (scope, scopeID) pair.
func NewLRU(maxEntriesPerScope int) Cache {
	if maxEntriesPerScope <= 0 {
		maxEntriesPerScope = 64
	}
	return &lruCache{
		maxEntriesPerScope: maxEntriesPerScope,
		scopeLists:         make(map[string]*list.List),
		elements:           make(map[string]*list.Element),
	}
}

func scopeKey(scope, scopeID string) string {
	return scope + "\x00" + scopeID
}

func entryKey(scope, scopeID, key string) string {
	return scope + "\x00" + scopeID + "\x00" + key
}

func (c *lruCache) Set(scope, scopeID, key string, value any, opts ...Option) {
	o := &setOptions{}
	for _, opt := range opts {
		opt(o)
	}

	now := time.Now()
	var expiresAt *time.Time
	if o.ttl > 0 {
		t := now.Add(o.ttl)
		expiresAt = &t
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sk := scopeKey(scope, scopeID)
	ek := entryKey(scope, scopeID, key)

	if elem, ok := c.elements[ek]; ok {
		// Update existing entry and move to front.
		e := elem.Value.(*Entry)
		e.Value = value
		e.ExpiresAt = expiresAt
		e.UpdatedAt = now
		c.scopeLists[sk].MoveToFront(elem)
		return
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		Scope:     scope,
		ScopeID:   scopeID,
		ExpiresAt: expiresAt,
		UpdatedAt: now,
		CreatedAt: now,
	}

	l, ok := c.scopeLists[sk]
	if !ok {
		l = list.New()
		c.scopeLists[sk] = l
	}

	// Evict from back when at capacity.
	if l.Len() >= c.maxEntriesPerScope {
		back := l.Back()
		if back != nil {
			evicted := l.Remove(back).(*Entry)
			delete(c.elements, entryKey(evicted.Scope, evicted.ScopeID, evicted.Key))
		}
	}

	elem := l.PushFront(entry)
	c.elements[ek] = elem
}

func (c *lruCache) Get(scope, scopeID, key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ek := entryKey(scope, scopeID, key)
	elem, ok := c.elements[ek]
	if !ok {
		return Entry{}, false
	}

	e := elem.Value.(*Entry)

	// Lazy TTL eviction.
	if e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
		sk := scopeKey(scope, scopeID)
		c.scopeLists[sk].Remove(elem)
		delete(c.elements, ek)
		if c.scopeLists[sk].Len() == 0 {
			delete(c.scopeLists, sk)
		}
		return Entry{}, false
	}

	c.scopeLists[scopeKey(scope, scopeID)].MoveToFront(elem)
	return *e, true
}

func (c *lruCache) Delete(scope, scopeID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ek := entryKey(scope, scopeID, key)
	elem, ok := c.elements[ek]
	if !ok {
		return false
	}

	sk := scopeKey(scope, scopeID)
	c.scopeLists[sk].Remove(elem)
	delete(c.elements, ek)
	if c.scopeLists[sk].Len() == 0 {
		delete(c.scopeLists, sk)
	}
	return true
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, l := range c.scopeLists {
		total += l.Len()
	}
	return total
}
