package crm

import (
	"context"
	"database/sql"
	"errors"

	"forkline.io/internal/fault"
	"forkline.io/internal/ids"
	"forkline.io/internal/store"
)

// RestaurantRepo persists restaurants. Every method runs on the scope the
// caller supplies.
type RestaurantRepo struct{}

func (RestaurantRepo) Create(ctx context.Context, sc *store.Scope, r *Restaurant) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
	return scanRestaurant(sc.QueryRowContext(ctx, `
		insert into restaurants(id, name, address, phone, email, status)
		values ($1,$2,$3,$4,$5,$6)
		returning id, name, address, phone, email, status, created_at, updated_at`,
		r.ID, r.Name, r.Address, r.Phone, r.Email, string(r.Status)), r)
}

func (RestaurantRepo) Find(ctx context.Context, sc *store.Scope, id string) (*Restaurant, error) {
	var r Restaurant
	err := scanRestaurant(sc.QueryRowContext(ctx, `
		select id, name, address, phone, email, status, created_at, updated_at
		from restaurants where id=$1`, id), &r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("restaurant %s not found", id)
		}
		return nil, err
	}
	return &r, nil
}

func (RestaurantRepo) List(ctx context.Context, sc *store.Scope) ([]*Restaurant, error) {
	rows, err := sc.QueryContext(ctx, `
		select id, name, address, phone, email, status, created_at, updated_at
		from restaurants order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Restaurant
	for rows.Next() {
		var r Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.Phone, &r.Email, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &r)
	}
	return res, rows.Err()
}

// RestaurantUpdate carries the fields a partial update may change.
type RestaurantUpdate struct {
	Name    *string
	Address *string
	Phone   *string
	Email   *string
	Status  *RestaurantStatus
}

func (repo RestaurantRepo) Update(ctx context.Context, sc *store.Scope, id string, upd RestaurantUpdate) (*Restaurant, error) {
	r, err := repo.Find(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Address != nil {
		r.Address = *upd.Address
	}
	if upd.Phone != nil {
		r.Phone = *upd.Phone
	}
	if upd.Email != nil {
		r.Email = *upd.Email
	}
	if upd.Status != nil {
		r.Status = *upd.Status
	}
	err = scanRestaurant(sc.QueryRowContext(ctx, `
		update restaurants
		set name=$2, address=$3, phone=$4, email=$5, status=$6, updated_at=now()
		where id=$1
		returning id, name, address, phone, email, status, created_at, updated_at`,
		id, r.Name, r.Address, r.Phone, r.Email, string(r.Status)), r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("restaurant %s not found", id)
		}
		return nil, err
	}
	return r, nil
}

func (RestaurantRepo) Delete(ctx context.Context, sc *store.Scope, id string) error {
	res, err := sc.ExecContext(ctx, `delete from restaurants where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.NotFoundf("restaurant %s not found", id)
	}
	return nil
}

func scanRestaurant(row *sql.Row, r *Restaurant) error {
	return row.Scan(&r.ID, &r.Name, &r.Address, &r.Phone, &r.Email, &r.Status, &r.CreatedAt, &r.UpdatedAt)
}
