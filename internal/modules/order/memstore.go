// README: In-memory order store; backs tests and brokerless single-process runs.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"dishpatch/internal/types"
)

type MemStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []StatusEvent
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[types.ID]*Order)}
}

func (s *MemStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Snapshot()
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Snapshot(), nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemStore) AssignCourier(ctx context.Context, id types.ID, courierID types.ID, from, to Status, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.CourierID != nil || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	cid := courierID
	o.CourierID = &cid
	o.Status = to
	o.StatusVersion++
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemStore) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	return s.list(func(o *Order) bool { return o.UserID == userID })
}

func (s *MemStore) ListByRestaurant(ctx context.Context, restaurantID types.ID) ([]*Order, error) {
	return s.list(func(o *Order) bool { return o.RestaurantID == restaurantID })
}

func (s *MemStore) ListByCourier(ctx context.Context, courierID types.ID) ([]*Order, error) {
	return s.list(func(o *Order) bool { return o.CourierID != nil && *o.CourierID == courierID })
}

func (s *MemStore) ListByStatus(ctx context.Context, statuses []Status) ([]*Order, error) {
	set := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		set[st] = true
	}
	return s.list(func(o *Order) bool { return set[o.Status] })
}

func (s *MemStore) AppendStatusEvent(ctx context.Context, e *StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

// StatusEvents returns a copy of the audit trail for one order.
func (s *MemStore) StatusEvents(id types.ID) []StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StatusEvent
	for _, e := range s.events {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemStore) list(keep func(*Order) bool) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o.Snapshot())
		}
	}
	// newest first, matching the SQL store's ORDER BY created_at DESC
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
