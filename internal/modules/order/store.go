// README: Order persistence contract; compare-and-swap on status serializes transitions.
package order

import (
	"context"
	"errors"

	"dishpatch/internal/types"
)

var ErrNotFound = errors.New("order not found")

// Store is the persistence collaborator. UpdateStatus and AssignCourier
// are conditional writes: they succeed only if the row still carries the
// expected status and version, which serializes racing transitions.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AssignCourier(ctx context.Context, id types.ID, courierID types.ID, from, to Status, version int) (bool, error)
	ListByUser(ctx context.Context, userID types.ID) ([]*Order, error)
	ListByRestaurant(ctx context.Context, restaurantID types.ID) ([]*Order, error)
	ListByCourier(ctx context.Context, courierID types.ID) ([]*Order, error)
	ListByStatus(ctx context.Context, statuses []Status) ([]*Order, error)
	AppendStatusEvent(ctx context.Context, e *StatusEvent) error
}
