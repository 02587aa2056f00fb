package permission

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	roleID     uuid.UUID
	role       *models.Role
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// RoleCache is an in-memory LRU cache with TTL for roles and their permission sets.
// Thread-safe implementation using sync.Mutex
type RoleCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List    // Doubly linked list for LRU tracking
	maxSize int           // Maximum number of entries
	ttl     time.Duration // Time-to-live for entries
	now     func() time.Time
	hits    uint64
	misses  uint64
	gen     uint64 // Advances on every invalidation
}

// NewRoleCache creates a new RoleCache with specified max size and TTL
func NewRoleCache(maxSize int, ttl time.Duration) *RoleCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RoleCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry
func (c *RoleCache) WithClock(now func() time.Time) *RoleCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *RoleCache) expired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns a copy of the cached role, or nil if absent or expired
func (c *RoleCache) Get(roleID uuid.UUID) *models.Role {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[roleID]
	if !exists || c.expired(entry) {
		c.misses++
		if exists {
			c.removeEntry(roleID)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return cloneRole(entry.role)
}

// Set stores a copy of role under its ID
func (c *RoleCache) Set(role *models.Role) {
	if role == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(role)
}

// store must be called with lock held
func (c *RoleCache) store(role *models.Role) {
	if entry, exists := c.entries[role.ID]; exists {
		entry.role = cloneRole(role)
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		roleID:     role.ID,
		role:       cloneRole(role),
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(role.ID)
	c.entries[role.ID] = entry
}

// Generation returns the invalidation counter. Read it before loading a role
// from storage and hand it to SetIfCurrent.
func (c *RoleCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores role only when no invalidation happened since gen was
// read, so a load that raced a grant change cannot re-cache the old set.
func (c *RoleCache) SetIfCurrent(role *models.Role, gen uint64) bool {
	if role == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.store(role)
	return true
}

// Invalidate removes the entry of one role
func (c *RoleCache) Invalidate(roleID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.removeEntry(roleID)
}

// InvalidatePermission removes every role that grants the given permission
func (c *RoleCache) InvalidatePermission(permissionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for roleID, entry := range c.entries {
		if _, ok := entry.role.Permissions[permissionID]; ok {
			c.removeEntry(roleID)
		}
	}
}

// Clear removes all entries from the cache
func (c *RoleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *RoleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *RoleCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []uuid.UUID
	for roleID, entry := range c.entries {
		if c.expired(entry) {
			expired = append(expired, roleID)
		}
	}
	for _, roleID := range expired {
		c.removeEntry(roleID)
	}
	return len(expired)
}

// StartCleanupWorker periodically drops expired entries until stopCh is closed
func (c *RoleCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// removeEntry must be called with lock held
func (c *RoleCache) removeEntry(roleID uuid.UUID) {
	if entry, exists := c.entries[roleID]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, roleID)
	}
}

// evictLRU must be called with lock held
func (c *RoleCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(uuid.UUID))
}

// cloneRole copies role so callers cannot mutate cached permission sets
func cloneRole(role *models.Role) *models.Role {
	out := *role
	out.Permissions = make(models.PermissionSet, len(role.Permissions))
	for id, p := range role.Permissions {
		out.Permissions[id] = p
	}
	return &out
}
