package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sigbridge/internal/hass"
)

// entityCache indexes one backend snapshot by lowercase alias. A cache
// is immutable after construction; Refresh builds a new one and swaps
// the pointer, so concurrent readers never observe a partial rebuild
// and stale aliases from a previous snapshot cannot survive a rename.
type entityCache struct {
	byAlias  map[string]hass.Entity
	order    []string      // alias insertion order, for deterministic substring matches
	entities []hass.Entity // backend order, for roster queries
	builtAt  time.Time
}

// Resolver maintains a time-bounded cache of backend entities and
// resolves free-text names against it. The cache is built lazily on
// first use and rebuilt wholesale once the staleness window elapses.
type Resolver struct {
	client *hass.Client
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache *entityCache
}

func NewResolver(client *hass.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{client: client, ttl: ttl, logger: logger}
}

// Resolve matches free text to an entity: exact case-insensitive alias
// match first, then the first cache entry (in insertion order) whose
// alias contains the input or is contained by it. Ties favor entries
// registered earlier; there is no disambiguation feedback.
func (r *Resolver) Resolve(ctx context.Context, freeText string) (hass.Entity, bool, error) {
	cache, err := r.fresh(ctx)
	if err != nil {
		return hass.Entity{}, false, err
	}

	needle := strings.ToLower(strings.TrimSpace(freeText))
	if needle == "" {
		return hass.Entity{}, false, nil
	}

	if entity, ok := cache.byAlias[needle]; ok {
		return entity, true, nil
	}
	for _, alias := range cache.order {
		if strings.Contains(needle, alias) || strings.Contains(alias, needle) {
			return cache.byAlias[alias], true, nil
		}
	}
	return hass.Entity{}, false, nil
}

// Entities returns the current snapshot in backend order, refreshing
// it first if stale.
func (r *Resolver) Entities(ctx context.Context) ([]hass.Entity, error) {
	cache, err := r.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return cache.entities, nil
}

// Refresh rebuilds the cache from the backend and atomically replaces
// the old one. Idempotent and safe to call concurrently with Resolve.
func (r *Resolver) Refresh(ctx context.Context) error {
	entities, err := r.client.States(ctx)
	if err != nil {
		return err
	}

	cache := &entityCache{
		byAlias:  make(map[string]hass.Entity, len(entities)*3),
		entities: entities,
		builtAt:  time.Now(),
	}
	for _, entity := range entities {
		cache.index(entity.EntityID, entity)
		cache.index(entity.FriendlyName(), entity)
		cache.index(normalizedID(entity.EntityID), entity)
	}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()

	r.logger.Debug("entity cache rebuilt", "entities", len(entities), "aliases", len(cache.byAlias))
	return nil
}

// CacheSize reports the number of indexed aliases, 0 when the cache
// has not been built yet.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cache == nil {
		return 0
	}
	return len(r.cache.byAlias)
}

func (r *Resolver) fresh(ctx context.Context) (*entityCache, error) {
	r.mu.RLock()
	cache := r.cache
	r.mu.RUnlock()

	if cache != nil && time.Since(cache.builtAt) < r.ttl {
		return cache, nil
	}
	if err := r.Refresh(ctx); err != nil {
		// A stale cache beats no cache when the backend hiccups.
		if cache != nil {
			r.logger.Warn("entity refresh failed, serving stale cache", "err", err)
			return cache, nil
		}
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache, nil
}

func (c *entityCache) index(alias string, entity hass.Entity) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return
	}
	if _, exists := c.byAlias[alias]; exists {
		return
	}
	c.byAlias[alias] = entity
	c.order = append(c.order, alias)
}

// normalizedID strips the domain prefix and replaces id separators
// with spaces: "light.living_room_light" → "living room light".
func normalizedID(entityID string) string {
	if i := strings.Index(entityID, "."); i >= 0 {
		entityID = entityID[i+1:]
	}
	entityID = strings.ReplaceAll(entityID, "_", " ")
	return strings.ReplaceAll(entityID, "-", " ")
}
