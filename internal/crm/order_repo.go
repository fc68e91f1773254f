package crm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forkline.io/internal/fault"
	"forkline.io/internal/ids"
	"forkline.io/internal/store"
)

const orderColumns = `id, restaurant_id, user_id, interaction_id, status, amount, created_at, updated_at`

// OrderRepo persists orders. Amounts are minor currency units.
type OrderRepo struct{}

func (OrderRepo) Create(ctx context.Context, sc *store.Scope, o *Order) error {
	if o.ID == "" {
		o.ID = ids.New()
	}
	if o.Status == "" {
		o.Status = OrderNew
	}
	return scanOrderRow(sc.QueryRowContext(ctx, `
		insert into orders(id, restaurant_id, user_id, interaction_id, status, amount)
		values ($1,$2,$3,$4,$5,$6)
		returning `+orderColumns,
		o.ID, o.RestaurantID, o.UserID, o.InteractionID, string(o.Status), o.Amount), o)
}

func (OrderRepo) Find(ctx context.Context, sc *store.Scope, id string) (*Order, error) {
	var o Order
	err := scanOrderRow(sc.QueryRowContext(ctx, `
		select `+orderColumns+` from orders where id=$1`, id), &o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("order %s not found", id)
		}
		return nil, err
	}
	return &o, nil
}

func (OrderRepo) ListByRestaurant(ctx context.Context, sc *store.Scope, restaurantID string) ([]*Order, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+orderColumns+` from orders where restaurant_id=$1 order by created_at desc`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.RestaurantID, &o.UserID, &o.InteractionID, &o.Status, &o.Amount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &o)
	}
	return res, rows.Err()
}

func (OrderRepo) UpdateStatus(ctx context.Context, sc *store.Scope, id string, status OrderStatus) (*Order, error) {
	var o Order
	err := scanOrderRow(sc.QueryRowContext(ctx, `
		update orders set status=$2, updated_at=now() where id=$1
		returning `+orderColumns, id, string(status)), &o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("order %s not found", id)
		}
		return nil, err
	}
	return &o, nil
}

// OrderAggregate summarizes delivered orders over a period.
type OrderAggregate struct {
	Count       int
	TotalAmount int64
}

// AggregateForPeriod sums delivered orders for one restaurant between
// start (inclusive) and end (exclusive).
func (OrderRepo) AggregateForPeriod(ctx context.Context, sc *store.Scope, restaurantID string, start, end time.Time) (OrderAggregate, error) {
	var agg OrderAggregate
	err := sc.QueryRowContext(ctx, `
		select count(*), coalesce(sum(amount), 0)
		from orders
		where restaurant_id=$1 and status=$2 and created_at >= $3 and created_at < $4`,
		restaurantID, string(OrderDelivered), start, end).
		Scan(&agg.Count, &agg.TotalAmount)
	return agg, err
}

func scanOrderRow(row *sql.Row, o *Order) error {
	return row.Scan(&o.ID, &o.RestaurantID, &o.UserID, &o.InteractionID, &o.Status, &o.Amount, &o.CreatedAt, &o.UpdatedAt)
}
