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

const metricColumns = `id, restaurant_id, period_start, period_end, total_orders, total_amount, average_order_value, order_frequency, created_at, updated_at`

// PerformanceRepo persists derived per-restaurant metrics. One row per
// restaurant and period; recomputation overwrites in place.
type PerformanceRepo struct{}

func (PerformanceRepo) Upsert(ctx context.Context, sc *store.Scope, m *PerformanceMetric) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	return scanMetric(sc.QueryRowContext(ctx, `
		insert into performance_metrics(id, restaurant_id, period_start, period_end, total_orders, total_amount, average_order_value, order_frequency)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (restaurant_id, period_start, period_end) do update
		set total_orders=excluded.total_orders,
		    total_amount=excluded.total_amount,
		    average_order_value=excluded.average_order_value,
		    order_frequency=excluded.order_frequency,
		    updated_at=now()
		returning `+metricColumns,
		m.ID, m.RestaurantID, m.PeriodStart, m.PeriodEnd, m.TotalOrders, m.TotalAmount, m.AverageOrderValue, m.OrderFrequency), m)
}

func (PerformanceRepo) Find(ctx context.Context, sc *store.Scope, restaurantID string, start, end time.Time) (*PerformanceMetric, error) {
	var m PerformanceMetric
	err := scanMetric(sc.QueryRowContext(ctx, `
		select `+metricColumns+`
		from performance_metrics
		where restaurant_id=$1 and period_start=$2 and period_end=$3`,
		restaurantID, start, end), &m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("no metrics for restaurant %s in period", restaurantID)
		}
		return nil, err
	}
	return &m, nil
}

func (PerformanceRepo) ListByRestaurant(ctx context.Context, sc *store.Scope, restaurantID string) ([]*PerformanceMetric, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+metricColumns+`
		from performance_metrics where restaurant_id=$1 order by period_start desc`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*PerformanceMetric
	for rows.Next() {
		var m PerformanceMetric
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.PeriodStart, &m.PeriodEnd, &m.TotalOrders, &m.TotalAmount, &m.AverageOrderValue, &m.OrderFrequency, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func scanMetric(row *sql.Row, m *PerformanceMetric) error {
	return row.Scan(&m.ID, &m.RestaurantID, &m.PeriodStart, &m.PeriodEnd, &m.TotalOrders, &m.TotalAmount, &m.AverageOrderValue, &m.OrderFrequency, &m.CreatedAt, &m.UpdatedAt)
}
