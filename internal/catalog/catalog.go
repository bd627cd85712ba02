// Package catalog serves short-lived snapshots of cards, rules and apps.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/patrickmn/go-cache"
)

const snapshotKey = "snapshot"

// Snapshot is one consistent read of the engine inputs.
type Snapshot struct {
	Cards    []*domain.Card
	Rules    *domain.RuleSet
	Apps     []*domain.App
	LoadedAt time.Time
}

// Catalog caches the store contents for a short TTL so bursts of
// recommendation requests share one load.
type Catalog struct {
	store domain.Store
	cache *cache.Cache
	ttl   time.Duration

	// generation moves on every Invalidate; loads that straddle one are not cached.
	generation atomic.Uint64
}

// New creates a catalog over store. A zero ttl disables caching.
func New(store domain.Store, ttl time.Duration) *Catalog {
	return &Catalog{
		store: store,
		cache: cache.New(ttl, 2*ttl+time.Second),
		ttl:   ttl,
	}
}

// Snapshot returns the cached snapshot, reloading it once the TTL has passed.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, bool, error) {
	if c.ttl > 0 {
		if cached, found := c.cache.Get(snapshotKey); found {
			return cached.(*Snapshot), true, nil
		}
	}

	gen := c.generation.Load()
	snap, err := c.load(ctx)
	if err != nil {
		return nil, false, err
	}

	if c.ttl > 0 && c.generation.Load() == gen {
		c.cache.Set(snapshotKey, snap, c.ttl)
	}
	return snap, false, nil
}

// Invalidate drops the cached snapshot. Call after every write.
func (c *Catalog) Invalidate() {
	c.generation.Add(1)
	c.cache.Delete(snapshotKey)
}

// AppendCard stores a card and invalidates the snapshot.
func (c *Catalog) AppendCard(ctx context.Context, card *domain.Card) error {
	if err := c.store.AppendCard(ctx, card); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// load reads cards, rules and apps in parallel.
func (c *Catalog) load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var cardsErr, rulesErr, appsErr error

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		snap.Cards, cardsErr = c.store.LoadCards(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Rules, rulesErr = c.store.LoadRules(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Apps, appsErr = c.store.LoadApps(ctx)
	}()
	wg.Wait()

	if cardsErr != nil {
		return nil, fmt.Errorf("failed to load cards: %w", cardsErr)
	}
	if rulesErr != nil {
		return nil, fmt.Errorf("failed to load rules: %w", rulesErr)
	}
	if appsErr != nil {
		return nil, fmt.Errorf("failed to load apps: %w", appsErr)
	}

	snap.LoadedAt = time.Now().UTC()
	return snap, nil
}
