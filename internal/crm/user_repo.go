package crm

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"forkline.io/internal/auth"
	"forkline.io/internal/fault"
	"forkline.io/internal/ids"
	"forkline.io/internal/store"
)

const userColumns = `id, name, email, phone, role, password_hash, restaurant_id, created_at, updated_at`

// UserRepo persists users. Restaurant contacts are users tied to a
// restaurant; staff accounts leave restaurant_id null.
type UserRepo struct{}

func (UserRepo) Create(ctx context.Context, sc *store.Scope, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := scanUser(sc.QueryRowContext(ctx, `
		insert into users(id, name, email, phone, role, password_hash, restaurant_id)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning `+userColumns,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), u.PasswordHash, nullable(u.RestaurantID)), u)
	if err != nil && isUniqueViolation(err) {
		return fault.Conflictf("email %s already registered", u.Email)
	}
	return err
}

func (UserRepo) Find(ctx context.Context, sc *store.Scope, id string) (*auth.User, error) {
	var u auth.User
	err := scanUser(sc.QueryRowContext(ctx, `
		select `+userColumns+` from users where id=$1`, id), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("user %s not found", id)
		}
		return nil, err
	}
	return &u, nil
}

func (UserRepo) FindByEmail(ctx context.Context, sc *store.Scope, email string) (*auth.User, error) {
	var u auth.User
	err := scanUser(sc.QueryRowContext(ctx, `
		select `+userColumns+` from users where email=$1`,
		strings.ToLower(strings.TrimSpace(email))), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("user %s not found", email)
		}
		return nil, err
	}
	return &u, nil
}

// ContactUpdate carries the fields a partial user update may change.
// PasswordHash, when set, must already be hashed.
type ContactUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	Role         *auth.Role
	RestaurantID *string
	PasswordHash *string
}

func (repo UserRepo) Update(ctx context.Context, sc *store.Scope, id string, upd ContactUpdate) (*auth.User, error) {
	u, err := repo.Find(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.RestaurantID != nil {
		u.RestaurantID = *upd.RestaurantID
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	err = scanUser(sc.QueryRowContext(ctx, `
		update users
		set name=$2, email=$3, phone=$4, role=$5, password_hash=$6, restaurant_id=$7, updated_at=now()
		where id=$1
		returning `+userColumns,
		id, u.Name, u.Email, u.Phone, string(u.Role), u.PasswordHash, nullable(u.RestaurantID)), u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("user %s not found", id)
		}
		if isUniqueViolation(err) {
			return nil, fault.Conflictf("email %s already registered", u.Email)
		}
		return nil, err
	}
	return u, nil
}

func (UserRepo) List(ctx context.Context, sc *store.Scope) ([]*auth.User, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+userColumns+` from users order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*auth.User
	for rows.Next() {
		var u auth.User
		if err := scanUserRows(rows, &u); err != nil {
			return nil, err
		}
		res = append(res, &u)
	}
	return res, rows.Err()
}

func (UserRepo) ListByRestaurant(ctx context.Context, sc *store.Scope, restaurantID string) ([]*auth.User, error) {
	rows, err := sc.QueryContext(ctx, `
		select `+userColumns+` from users where restaurant_id=$1 order by created_at`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*auth.User
	for rows.Next() {
		var u auth.User
		if err := scanUserRows(rows, &u); err != nil {
			return nil, err
		}
		res = append(res, &u)
	}
	return res, rows.Err()
}

func (UserRepo) Delete(ctx context.Context, sc *store.Scope, id string) error {
	res, err := sc.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.NotFoundf("user %s not found", id)
	}
	return nil
}

func scanUser(row *sql.Row, u *auth.User) error {
	var restaurantID sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.PasswordHash, &restaurantID, &u.CreatedAt, &u.UpdatedAt)
	u.RestaurantID = restaurantID.String
	return err
}

func scanUserRows(rows *sql.Rows, u *auth.User) error {
	var restaurantID sql.NullString
	err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.PasswordHash, &restaurantID, &u.CreatedAt, &u.UpdatedAt)
	u.RestaurantID = restaurantID.String
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation spots the postgres unique_violation SQLSTATE.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
