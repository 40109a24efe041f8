package profile

import (
	"context"
	"sync"
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/quota"
)

// Source is where the cache fetches authoritative profiles from.
type Source interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
}

// Cache holds the in-memory profile each user's orchestrator reads. It is
// the single shared mutable resource: every writer (optimistic patch,
// remote merge, full refetch) goes through one method that writes the quota
// pair atomically under the lock.
type Cache struct {
	source Source
	limit  int
	now    func() time.Time

	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewCache(source Source, limit int) *Cache {
	return &Cache{
		source:   source,
		limit:    limit,
		now:      time.Now,
		profiles: make(map[string]models.Profile),
	}
}

// Fetch returns the cached profile, loading it from the source on first
// use.
func (c *Cache) Fetch(ctx context.Context, userID string) (*models.Profile, error) {
	c.mu.RLock()
	p, ok := c.profiles[userID]
	c.mu.RUnlock()
	if ok {
		return &p, nil
	}
	return c.Refresh(ctx, userID)
}

// Refresh re-reads the profile from the source and overwrites the cached
// copy in full.
func (c *Cache) Refresh(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := c.source.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.profiles[userID] = *p
	c.mu.Unlock()

	out := *p
	return &out, nil
}

// Get returns the cached profile without touching the source.
func (c *Cache) Get(userID string) (models.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[userID]
	return p, ok
}

// PatchLocal applies an optimistic increment so the quota view updates
// without waiting for the authoritative write to land.
func (c *Cache) PatchLocal(userID string, increment int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[userID] = quota.Patch(c.profiles[userID], increment, c.limit, c.now())
}

// MergeRemote applies a push-channel delta. Remote is authoritative and
// supersedes any stale optimistic patch; deltas are applied in receipt
// order, last write wins for the quota pair.
func (c *Cache) MergeRemote(delta models.ProfileDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[delta.UserID] = quota.Merge(c.profiles[delta.UserID], delta)
}

// MarkLimitReached snaps the cached quota pair to the configured limit.
// Used when the server answers 429: that response is itself authoritative
// evidence that the local view was stale, so the indicator must flip
// before the next refresh lands.
func (c *Cache) MarkLimitReached(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[userID] = quota.Patch(c.profiles[userID], c.limit, c.limit, c.now())
}

// Quota derives the current usage view from the cached profile.
func (c *Cache) Quota(userID string) models.QuotaState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return quota.Compute(c.profiles[userID], c.limit, c.now())
}

// Clear drops the cached profile on sign-out.
func (c *Cache) Clear(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
}
