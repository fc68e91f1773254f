package crm

import (
	"context"
	"database/sql"
	"errors"

	"forkline.io/internal/fault"
	"forkline.io/internal/ids"
	"forkline.io/internal/store"
)

// InteractionRepo persists the contact history of a restaurant.
type InteractionRepo struct{}

func (InteractionRepo) Create(ctx context.Context, sc *store.Scope, in *Interaction) error {
	if in.ID == "" {
		in.ID = ids.New()
	}
	return sc.QueryRowContext(ctx, `
		insert into interactions(id, user_id, restaurant_id, type, occurred_at, notes)
		values ($1,$2,$3,$4,$5,$6)
		returning id, user_id, restaurant_id, type, occurred_at, notes`,
		in.ID, in.UserID, in.RestaurantID, string(in.Type), in.OccurredAt, in.Notes).
		Scan(&in.ID, &in.UserID, &in.RestaurantID, &in.Type, &in.OccurredAt, &in.Notes)
}

func (InteractionRepo) Find(ctx context.Context, sc *store.Scope, id string) (*Interaction, error) {
	var in Interaction
	err := sc.QueryRowContext(ctx, `
		select id, user_id, restaurant_id, type, occurred_at, notes
		from interactions where id=$1`, id).
		Scan(&in.ID, &in.UserID, &in.RestaurantID, &in.Type, &in.OccurredAt, &in.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("interaction %s not found", id)
		}
		return nil, err
	}
	return &in, nil
}

func (InteractionRepo) ListByRestaurant(ctx context.Context, sc *store.Scope, restaurantID string) ([]*Interaction, error) {
	return listInteractions(ctx, sc, `
		select id, user_id, restaurant_id, type, occurred_at, notes
		from interactions where restaurant_id=$1 order by occurred_at desc`, restaurantID)
}

func (InteractionRepo) ListByUser(ctx context.Context, sc *store.Scope, userID string) ([]*Interaction, error) {
	return listInteractions(ctx, sc, `
		select id, user_id, restaurant_id, type, occurred_at, notes
		from interactions where user_id=$1 order by occurred_at desc`, userID)
}

func listInteractions(ctx context.Context, sc *store.Scope, query string, args ...any) ([]*Interaction, error) {
	rows, err := sc.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.UserID, &in.RestaurantID, &in.Type, &in.OccurredAt, &in.Notes); err != nil {
			return nil, err
		}
		res = append(res, &in)
	}
	return res, rows.Err()
}
