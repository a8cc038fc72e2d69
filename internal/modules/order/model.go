// README: Order aggregate and status definitions.
package order

import (
	"time"

	"dishpatch/internal/types"
)

type Status string

const (
	StatusCreated              Status = "created"
	StatusAcceptedByRestaurant Status = "accepted_by_restaurant"
	StatusPreparing            Status = "preparing"
	StatusReadyForPickup       Status = "ready_for_pickup"
	StatusPickedUp             Status = "picked_up"
	StatusOnTheWay             Status = "on_the_way"
	StatusDelivered            Status = "delivered"
	StatusCompleted            Status = "completed"
	StatusCanceled             Status = "canceled"
)

// AssignmentStatus is the status a courier assignment forces on an order.
const AssignmentStatus = StatusPickedUp

type Item struct {
	MenuItemID types.ID    `json:"menu_item_id"`
	Name       string      `json:"name"`
	UnitPrice  types.Money `json:"unit_price"`
	Quantity   int         `json:"quantity"`
}

type Order struct {
	ID              types.ID    `json:"id"`
	UserID          types.ID    `json:"user_id"`
	RestaurantID    types.ID    `json:"restaurant_id"`
	CourierID       *types.ID   `json:"courier_id"`
	Status          Status      `json:"status"`
	StatusVersion   int         `json:"-"`
	Items           []Item      `json:"items"`
	TotalPrice      types.Money `json:"total_price"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryLat     float64     `json:"delivery_lat"`
	DeliveryLng     float64     `json:"delivery_lng"`
	DeliveryPIN     string      `json:"delivery_pin,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// StatusEvent is one row of the audit trail; the previous status is kept
// for analytics consumers.
type StatusEvent struct {
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// delivered is terminal for the courier-side flow; the single edge to
// completed is the administrative close-out.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:              {StatusAcceptedByRestaurant, StatusCanceled},
	StatusAcceptedByRestaurant: {StatusPreparing, StatusCanceled},
	StatusPreparing:            {StatusReadyForPickup, StatusCanceled},
	StatusReadyForPickup:       {StatusPickedUp, StatusCanceled},
	StatusPickedUp:             {StatusOnTheWay, StatusCanceled},
	StatusOnTheWay:             {StatusDelivered, StatusCanceled},
	StatusDelivered:            {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order lifecycle has ended from the
// delivery flow's point of view.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCompleted || s == StatusCanceled
}

// ParseStatus rejects unknown status values at the boundary.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusCreated, StatusAcceptedByRestaurant, StatusPreparing,
		StatusReadyForPickup, StatusPickedUp, StatusOnTheWay,
		StatusDelivered, StatusCompleted, StatusCanceled:
		return Status(s), true
	}
	return "", false
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (o *Order) Snapshot() *Order {
	cp := *o
	if o.CourierID != nil {
		id := *o.CourierID
		cp.CourierID = &id
	}
	cp.Items = make([]Item, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
