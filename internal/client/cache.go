// README: TTL cache keyed by query shape; events merge into it ahead of expiry.
package client

import (
	"strings"
	"sync"
	"time"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type Shape string

const (
	ByID         Shape = "byId"
	ByUser       Shape = "byUser"
	ByRestaurant Shape = "byRestaurant"
	ByCourier    Shape = "byCourier"
	ByStatus     Shape = "byStatus"
)

type cacheKey struct {
	shape Shape
	key   string
}

type cacheEntry struct {
	orders    []*order.Order
	fetchedAt time.Time
}

// Cache holds one entry per (shape, key). Entries expire after the TTL;
// incoming events merge into live entries immediately, which is what
// keeps the UI sub-second while the TTL stays in the 30s class.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{ttl: ttl, entries: make(map[cacheKey]cacheEntry), now: time.Now}
}

// StatusKey canonicalizes a status-set query so equivalent queries share
// one entry.
func StatusKey(statuses []order.Status) string {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	// order-insensitive
	for i := range ss {
		for j := i + 1; j < len(ss); j++ {
			if ss[j] < ss[i] {
				ss[i], ss[j] = ss[j], ss[i]
			}
		}
	}
	return strings.Join(ss, ",")
}

// Get returns the cached collection if present and fresh.
func (c *Cache) Get(shape Shape, key string) ([]*order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey{shape, key}]
	if !ok || c.now().Sub(e.fetchedAt) > c.ttl {
		return nil, false
	}
	return cloneAll(e.orders), true
}

func (c *Cache) Put(shape Shape, key string, orders []*order.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{shape, key}] = cacheEntry{orders: cloneAll(orders), fetchedAt: c.now()}
}

func (c *Cache) Invalidate(shape Shape, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{shape, key})
}

// InvalidateOrder drops every shape the given order could appear under.
func (c *Cache) InvalidateOrder(o *order.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{ByID, string(o.ID)})
	delete(c.entries, cacheKey{ByUser, string(o.UserID)})
	delete(c.entries, cacheKey{ByRestaurant, string(o.RestaurantID)})
	if o.CourierID != nil {
		delete(c.entries, cacheKey{ByCourier, string(*o.CourierID)})
	}
	for k := range c.entries {
		if k.shape == ByStatus {
			delete(c.entries, k)
		}
	}
}

// MergeEvent folds an event's order payload into every entry whose key
// set includes that order: replace if present, prepend if absent. It
// does not wait for TTL expiry.
func (c *Cache) MergeEvent(o *order.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeInto(cacheKey{ByID, string(o.ID)}, o, true)
	c.mergeInto(cacheKey{ByUser, string(o.UserID)}, o, true)
	c.mergeInto(cacheKey{ByRestaurant, string(o.RestaurantID)}, o, true)
	if o.CourierID != nil {
		c.mergeInto(cacheKey{ByCourier, string(*o.CourierID)}, o, true)
	}
	for k := range c.entries {
		if k.shape != ByStatus {
			continue
		}
		if statusKeyContains(k.key, o.Status) {
			c.mergeInto(k, o, true)
		} else {
			// the order moved out of this status set
			c.removeFrom(k, o.ID)
		}
	}
}

// mergeInto replaces o inside an existing entry, or prepends it when
// prepend is set. Missing entries stay missing: merging must not
// fabricate collections the caller never fetched.
func (c *Cache) mergeInto(k cacheKey, o *order.Order, prepend bool) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	for i, cur := range e.orders {
		if cur.ID == o.ID {
			e.orders[i] = o.Snapshot()
			c.entries[k] = e
			return
		}
	}
	if prepend {
		e.orders = append([]*order.Order{o.Snapshot()}, e.orders...)
		c.entries[k] = e
	}
}

func (c *Cache) removeFrom(k cacheKey, id types.ID) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	for i, cur := range e.orders {
		if cur.ID == id {
			e.orders = append(e.orders[:i], e.orders[i+1:]...)
			c.entries[k] = e
			return
		}
	}
}

func statusKeyContains(key string, s order.Status) bool {
	for _, part := range strings.Split(key, ",") {
		if part == string(s) {
			return true
		}
	}
	return false
}

func cloneAll(in []*order.Order) []*order.Order {
	out := make([]*order.Order, len(in))
	for i, o := range in {
		out[i] = o.Snapshot()
	}
	return out
}
