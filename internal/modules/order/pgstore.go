// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dishpatch/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, restaurant_id, courier_id, status, status_version,
			items, total_price_cents, delivery_address, delivery_lat, delivery_lng,
			delivery_pin, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)`,
		string(o.ID),
		string(o.UserID),
		string(o.RestaurantID),
		toStringPtr(o.CourierID),
		string(o.Status),
		o.StatusVersion,
		items,
		o.TotalPrice.Amount,
		o.DeliveryAddress,
		o.DeliveryLat, o.DeliveryLng,
		o.DeliveryPIN,
		o.CreatedAt,
		o.UpdatedAt,
	)
	return err
}

const orderColumns = `
	id, user_id, restaurant_id, courier_id, status, status_version,
	items, total_price_cents, delivery_address, delivery_lat, delivery_lng,
	delivery_pin, created_at, updated_at`

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AssignCourier(ctx context.Context, id types.ID, courierID types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET courier_id = $1,
		    status = $2,
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $3 AND courier_id IS NULL AND status = $4 AND status_version = $5`,
		string(courierID), string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID types.ID) ([]*Order, error) {
	return s.listWhere(ctx, `user_id = $1`, string(userID))
}

func (s *PGStore) ListByRestaurant(ctx context.Context, restaurantID types.ID) ([]*Order, error) {
	return s.listWhere(ctx, `restaurant_id = $1`, string(restaurantID))
}

func (s *PGStore) ListByCourier(ctx context.Context, courierID types.ID) ([]*Order, error) {
	return s.listWhere(ctx, `courier_id = $1`, string(courierID))
}

func (s *PGStore) ListByStatus(ctx context.Context, statuses []Status) ([]*Order, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	return s.listWhere(ctx, `status = ANY($1)`, vals)
}

func (s *PGStore) AppendStatusEvent(ctx context.Context, e *StatusEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_status_events (order_id, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4)`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus), e.CreatedAt,
	)
	return err
}

func (s *PGStore) listWhere(ctx context.Context, cond string, arg any) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `SELECT`+orderColumns+` FROM orders WHERE `+cond+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var courierID sql.NullString
	var items []byte
	var cents int64
	err := row.Scan(
		&o.ID, &o.UserID, &o.RestaurantID, &courierID, &o.Status, &o.StatusVersion,
		&items, &cents, &o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLng,
		&o.DeliveryPIN, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if courierID.Valid {
		c := types.ID(courierID.String)
		o.CourierID = &c
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	o.TotalPrice = types.Money{Amount: cents, Currency: "USD"}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
