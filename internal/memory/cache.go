// Package memory keeps per-caller context across sessions: an in-process cache
// that always works and an optional persistent backend behind it.
package memory

import (
	"sync"
	"time"

	"tiryaq/voice/internal/types"
)

// DefaultFirstName is used for callers we know nothing about.
const DefaultFirstName = "ضيف"

// Context is what is remembered about one caller of one tenant.
type Context struct {
	FirstName      string       `json:"first_name"`
	LongTermMemory string       `json:"long_term_memory"`
	History        []types.Turn `json:"history"`
	CreatedAt      time.Time    `json:"created_at"`
}

// DefaultContext is the context of a first-time caller.
func DefaultContext(now time.Time) Context {
	return Context{FirstName: DefaultFirstName, History: []types.Turn{}, CreatedAt: now.UTC()}
}

func (c Context) clone() Context {
	c.History = append([]types.Turn(nil), c.History...)
	return c
}

// Cache is a process-wide map of caller contexts. One instance is created at
// startup and handed to whoever needs it.
type Cache struct {
	mu sync.RWMutex
	m  map[cacheKey]Context
}

type cacheKey struct{ tenant, user string }

func NewCache() *Cache {
	return &Cache{m: make(map[cacheKey]Context)}
}

func key(tenant, user string) cacheKey { return cacheKey{tenant, user} }

func (c *Cache) Get(tenant, user string) (Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key(tenant, user)]
	return v.clone(), ok
}

func (c *Cache) Put(tenant, user string, v Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key(tenant, user)] = v.clone()
}

// Update applies fn to the stored context, starting from def if none exists.
func (c *Cache) Update(tenant, user string, def Context, fn func(*Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(tenant, user)
	v, ok := c.m[k]
	if !ok {
		v = def
	}
	v = v.clone()
	fn(&v)
	c.m[k] = v
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
