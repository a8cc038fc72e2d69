// README: Order service; owns the state machine, the delivery PIN protocol, and event emission.
package order

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"dishpatch/internal/types"
)

var (
	ErrValidation      = errors.New("invalid order input")
	ErrAlreadyAssigned = errors.New("courier already assigned")
	ErrConflict        = errors.New("order state conflict")

	// ErrInvalidTransition is the sentinel behind TransitionError; match
	// with errors.Is.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError names the current and requested status so callers can
// report the rejection precisely.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// casRetries bounds optimistic-concurrency retries before surfacing ErrConflict.
const casRetries = 3

// Notifier receives the post-mutation snapshot of every accepted
// mutation, plus the pre-mutation status where one exists. The events
// package implements it; delivery is best-effort and must never fail
// the mutation.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	StatusUpdated(ctx context.Context, o *Order, previous Status)
	CourierAssigned(ctx context.Context, o *Order, previous Status)
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

type ItemInput struct {
	MenuItemID types.ID
	Name       string
	UnitPrice  types.Money
	Quantity   int
}

type CreateCommand struct {
	UserID          types.ID
	RestaurantID    types.ID
	Items           []ItemInput
	DeliveryAddress string
	DeliveryLat     float64
	DeliveryLng     float64
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.UserID == "" || cmd.RestaurantID == "" || len(cmd.Items) == 0 {
		return nil, ErrValidation
	}
	total := types.Money{Currency: "USD"}
	items := make([]Item, len(cmd.Items))
	for i, in := range cmd.Items {
		if in.Quantity <= 0 || in.UnitPrice.Amount <= 0 {
			return nil, ErrValidation
		}
		items[i] = Item{
			MenuItemID: in.MenuItemID,
			Name:       in.Name,
			UnitPrice:  in.UnitPrice,
			Quantity:   in.Quantity,
		}
		total = total.Add(in.UnitPrice.Mul(in.Quantity))
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              types.ID(uuid.NewString()),
		UserID:          cmd.UserID,
		RestaurantID:    cmd.RestaurantID,
		Status:          StatusCreated,
		Items:           items,
		TotalPrice:      total,
		DeliveryAddress: cmd.DeliveryAddress,
		DeliveryLat:     cmd.DeliveryLat,
		DeliveryLng:     cmd.DeliveryLng,
		DeliveryPIN:     newDeliveryPIN(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OrderCreated(ctx, o.Snapshot())
	}
	return o, nil
}

// Transition moves an order along one edge of the status graph. Racing
// transitions are serialized by the store's conditional write; a lost
// race reloads and retries against the fresh status, so a still-valid
// edge wins on a later attempt and an invalidated one is rejected.
func (s *Service) Transition(ctx context.Context, id types.ID, target Status) (*Order, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(o.Status, target) {
			return nil, &TransitionError{From: o.Status, To: target}
		}
		ok, err := s.store.UpdateStatus(ctx, id, o.Status, target, o.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		prev := o.Status
		o.Status = target
		o.StatusVersion++
		o.UpdatedAt = time.Now().UTC()
		_ = s.store.AppendStatusEvent(ctx, &StatusEvent{
			OrderID:    o.ID,
			FromStatus: prev,
			ToStatus:   target,
			CreatedAt:  o.UpdatedAt,
		})
		if s.notifier != nil {
			s.notifier.StatusUpdated(ctx, o.Snapshot(), prev)
		}
		return o, nil
	}
	return nil, ErrConflict
}

// AssignCourier sets the courier exactly once and forces the
// assignment-designated status. It does not walk intermediate edges.
func (s *Service) AssignCourier(ctx context.Context, id, courierID types.ID) (*Order, error) {
	if courierID == "" {
		return nil, ErrValidation
	}
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.CourierID != nil {
			return nil, ErrAlreadyAssigned
		}
		if IsTerminal(o.Status) {
			return nil, &TransitionError{From: o.Status, To: AssignmentStatus}
		}
		ok, err := s.store.AssignCourier(ctx, id, courierID, o.Status, AssignmentStatus, o.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		prev := o.Status
		cid := courierID
		o.CourierID = &cid
		o.Status = AssignmentStatus
		o.StatusVersion++
		o.UpdatedAt = time.Now().UTC()
		_ = s.store.AppendStatusEvent(ctx, &StatusEvent{
			OrderID:    o.ID,
			FromStatus: prev,
			ToStatus:   AssignmentStatus,
			CreatedAt:  o.UpdatedAt,
		})
		if s.notifier != nil {
			s.notifier.CourierAssigned(ctx, o.Snapshot(), prev)
		}
		return o, nil
	}
	return nil, ErrConflict
}

type VerifyResult struct {
	Success bool
	Order   *Order
	Message string
}

// VerifyDeliveryPIN checks the submitted code against the live PIN and,
// on match, completes the delivery. Verification fails closed: it reads
// current state at call time, and an order that already reached the
// delivered stage (or any terminal state) is rejected regardless of PIN
// correctness.
func (s *Service) VerifyDeliveryPIN(ctx context.Context, id types.ID, submitted string) (VerifyResult, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			return VerifyResult{}, err
		}
		if !CanTransition(o.Status, StatusDelivered) {
			return VerifyResult{}, &TransitionError{From: o.Status, To: StatusDelivered}
		}
		if subtle.ConstantTimeCompare([]byte(submitted), []byte(o.DeliveryPIN)) != 1 {
			return VerifyResult{Success: false, Message: "Invalid PIN"}, nil
		}
		ok, err := s.store.UpdateStatus(ctx, id, o.Status, StatusDelivered, o.StatusVersion)
		if err != nil {
			return VerifyResult{}, err
		}
		if !ok {
			continue
		}
		prev := o.Status
		o.Status = StatusDelivered
		o.StatusVersion++
		o.UpdatedAt = time.Now().UTC()
		_ = s.store.AppendStatusEvent(ctx, &StatusEvent{
			OrderID:    o.ID,
			FromStatus: prev,
			ToStatus:   StatusDelivered,
			CreatedAt:  o.UpdatedAt,
		})
		if s.notifier != nil {
			s.notifier.StatusUpdated(ctx, o.Snapshot(), prev)
		}
		return VerifyResult{Success: true, Order: o}, nil
	}
	return VerifyResult{}, ErrConflict
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListByRestaurant(ctx context.Context, restaurantID types.ID) ([]*Order, error) {
	return s.store.ListByRestaurant(ctx, restaurantID)
}

func (s *Service) ListByCourier(ctx context.Context, courierID types.ID) ([]*Order, error) {
	return s.store.ListByCourier(ctx, courierID)
}

func (s *Service) ListByStatus(ctx context.Context, statuses []Status) ([]*Order, error) {
	return s.store.ListByStatus(ctx, statuses)
}

// newDeliveryPIN draws a uniform 4-digit code from 1000-9999.
func newDeliveryPIN() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		panic(err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000)
}
