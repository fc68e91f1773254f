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

const callPlanColumns = `id, restaurant_id, user_id, frequency_days, last_call_date, next_call_date, notes, created_at, updated_at`

// CallPlanRepo persists recurring outreach schedules.
type CallPlanRepo struct{}

func (CallPlanRepo) Create(ctx context.Context, sc *store.Scope, p *CallPlan) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	return scanCallPlan(sc.QueryRowContext(ctx, `
		insert into call_plans(id, restaurant_id, user_id, frequency_days, last_call_date, next_call_date, notes)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning `+callPlanColumns,
		p.ID, p.RestaurantID, p.UserID, p.FrequencyDays, p.LastCallDate, p.NextCallDate, p.Notes), p)
}

func (CallPlanRepo) Find(ctx context.Context, sc *store.Scope, id string) (*CallPlan, error) {
	var p CallPlan
	err := scanCallPlan(sc.QueryRowContext(ctx, `
		select `+callPlanColumns+` from call_plans where id=$1`, id), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("call plan %s not found", id)
		}
		return nil, err
	}
	return &p, nil
}

func (CallPlanRepo) ListDue(ctx context.Context, sc *store.Scope, by time.Time) ([]*CallPlan, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+callPlanColumns+` from call_plans where next_call_date <= $1 order by next_call_date`, by)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*CallPlan
	for rows.Next() {
		var p CallPlan
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.UserID, &p.FrequencyDays, &p.LastCallDate, &p.NextCallDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}

func (CallPlanRepo) ListByRestaurant(ctx context.Context, sc *store.Scope, restaurantID string) ([]*CallPlan, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+callPlanColumns+` from call_plans where restaurant_id=$1 order by next_call_date`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*CallPlan
	for rows.Next() {
		var p CallPlan
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.UserID, &p.FrequencyDays, &p.LastCallDate, &p.NextCallDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}

// Advance records a completed call: the last call date moves to called,
// the next call date moves one frequency interval past it.
func (CallPlanRepo) Advance(ctx context.Context, sc *store.Scope, restaurantID string, called time.Time) error {
	_, err := sc.ExecContext(ctx, `
		update call_plans
		set last_call_date=$2,
		    next_call_date=$2 + make_interval(days => frequency_days),
		    updated_at=now()
		where restaurant_id=$1`, restaurantID, called)
	return err
}

func (CallPlanRepo) Delete(ctx context.Context, sc *store.Scope, id string) error {
	res, err := sc.ExecContext(ctx, `delete from call_plans where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.NotFoundf("call plan %s not found", id)
	}
	return nil
}

func scanCallPlan(row *sql.Row, p *CallPlan) error {
	return row.Scan(&p.ID, &p.RestaurantID, &p.UserID, &p.FrequencyDays, &p.LastCallDate, &p.NextCallDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
}
