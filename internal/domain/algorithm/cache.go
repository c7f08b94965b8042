package algorithm

import (
	"context"
	"sync"
)

// Cache is the read-mostly snapshot the linkage driver resolves algorithms
// through. Lookups hit the snapshot; a miss triggers a single-writer reload
// from storage (configurations are immutable, so a cached hit can never be
// stale; only new labels and default flips need a reload).
type Cache struct {
	repo Repository

	mu         sync.RWMutex
	byLabel    map[string]*Algorithm
	defaultAlg *Algorithm
	loaded     bool
}

func NewCache(repo Repository) *Cache {
	return &Cache{repo: repo}
}

func (c *Cache) Get(ctx context.Context, label string) (*Algorithm, error) {
	c.mu.RLock()
	if c.loaded {
		if a, ok := c.byLabel[label]; ok {
			c.mu.RUnlock()
			return a, nil
		}
	}
	c.mu.RUnlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.byLabel[label]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (c *Cache) Default(ctx context.Context) (*Algorithm, error) {
	c.mu.RLock()
	if c.loaded && c.defaultAlg != nil {
		c.mu.RUnlock()
		return c.defaultAlg, nil
	}
	c.mu.RUnlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.defaultAlg != nil {
		return c.defaultAlg, nil
	}
	return nil, ErrNotFound
}

// Invalidate drops the snapshot; the next lookup reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.byLabel = nil
	c.defaultAlg = nil
	c.loaded = false
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	algorithms, err := c.repo.List(ctx)
	if err != nil {
		return err
	}
	byLabel := make(map[string]*Algorithm, len(algorithms))
	var def *Algorithm
	for _, a := range algorithms {
		byLabel[a.Label] = a
		if a.IsDefault {
			def = a
		}
	}
	c.byLabel = byLabel
	c.defaultAlg = def
	c.loaded = true
	return nil
}
