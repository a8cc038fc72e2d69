// README: Concurrency tests for order state transitions (run with -race).
package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dishpatch/internal/types"
)

func TestConcurrentAssignSameOrder(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	ctx := context.Background()
	o := mustCreate(t, svc, "u_assign_race", "r1")

	courierIDs := []types.ID{"c1", "c2", "c3"}
	errs := make(chan error, len(courierIDs))
	start := make(chan struct{})
	var wg sync.WaitGroup

	for _, courierID := range courierIDs {
		wg.Add(1)
		go func(cid types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.AssignCourier(ctx, o.ID, cid)
			errs <- err
		}(courierID)
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyAssigned) && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful assignment, got %d", success)
	}

	cur, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.CourierID == nil {
		t.Fatal("no courier recorded after race")
	}
	if cur.Status != StatusPickedUp {
		t.Fatalf("status = %s, want %s", cur.Status, StatusPickedUp)
	}
}

func TestConcurrentTransitionVsCancel(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	ctx := context.Background()
	o := mustCreate(t, svc, "u_cancel_race", "r1")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Transition(ctx, o.ID, StatusAcceptedByRestaurant)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Transition(ctx, o.ID, StatusCanceled)
		errs <- err
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// accept-then-cancel can both succeed (cancel is valid from
	// accepted); cancel-then-accept leaves accept rejected
	if success < 1 || success > 2 {
		t.Fatalf("expected 1 or 2 successes, got %d", success)
	}

	cur, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if success == 2 && cur.Status != StatusCanceled {
		t.Fatalf("expected canceled after both succeeded, got %s", cur.Status)
	}
	if success == 1 && cur.Status != StatusAcceptedByRestaurant && cur.Status != StatusCanceled {
		t.Fatalf("unexpected final status: %s", cur.Status)
	}
}

func TestConcurrentVerifyPIN(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	ctx := context.Background()
	o := mustCreate(t, svc, "u_pin_race", "r1")
	for _, next := range []Status{StatusAcceptedByRestaurant, StatusPreparing, StatusReadyForPickup, StatusPickedUp, StatusOnTheWay} {
		if _, err := svc.Transition(ctx, o.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	const callers = 4
	results := make(chan VerifyResult, callers)
	errs := make(chan error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := svc.VerifyDeliveryPIN(ctx, o.ID, o.DeliveryPIN)
			results <- res
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	success := 0
	for res := range results {
		if res.Success {
			success++
		}
	}
	for err := range errs {
		if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful verification, got %d", success)
	}
	assertStatus(t, svc, o.ID, StatusDelivered)
}
