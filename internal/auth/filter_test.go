package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func authorize(t *testing.T, f Filter, user *User) bool {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	ok, err := f.Authorize(context.Background(), user, r)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	return ok
}

func TestRoleFilterMatchAny(t *testing.T) {
	staff := &User{Role: RoleStaff}
	if !authorize(t, AnyRole(RoleStaff, RoleAdmin), staff) {
		t.Fatal("staff must match any-of {Staff, Admin}")
	}
	if authorize(t, AnyRole(RoleAdmin, RoleOwner), staff) {
		t.Fatal("staff must not match any-of {Admin, Owner}")
	}
}

func TestRoleFilterMatchAll(t *testing.T) {
	staff := &User{Role: RoleStaff}
	// A single-role user can only satisfy an all-of filter naming exactly
	// its own role.
	if authorize(t, AllRoles(RoleStaff, RoleAdmin), staff) {
		t.Fatal("single-role user cannot match all-of {Staff, Admin}")
	}
	if !authorize(t, AllRoles(RoleStaff), staff) {
		t.Fatal("staff must match all-of {Staff}")
	}
	if authorize(t, AllRoles(), staff) {
		t.Fatal("empty all-of filter must deny")
	}
}

func TestPermissionFilter(t *testing.T) {
	staff := &User{Role: RoleStaff}
	if !authorize(t, AnyPermission(PermManageOrders, PermManageRestaurants), staff) {
		t.Fatal("staff holds order management")
	}
	if authorize(t, AllPermissions(PermManageOrders, PermManageRestaurants), staff) {
		t.Fatal("staff does not hold restaurant management")
	}
	if !authorize(t, AllPermissions(PermManageOrders, PermViewPerformance), staff) {
		t.Fatal("staff holds both permissions")
	}
}

func TestCompositeAnyOfAllOf(t *testing.T) {
	owner := &User{Role: RoleOwner}
	if !authorize(t, AnyOf(AnyRole(RoleAdmin), AnyRole(RoleOwner)), owner) {
		t.Fatal("owner must pass Admin OR Owner")
	}
	if authorize(t, AllOf(AnyRole(RoleAdmin), AnyRole(RoleOwner)), owner) {
		t.Fatal("owner must fail Admin AND Owner")
	}
}

func TestCompositeNesting(t *testing.T) {
	manager := &User{Role: RoleManager}
	// (Admin OR Manager) AND performance.view
	f := AllOf(
		AnyOf(AnyRole(RoleAdmin), AnyRole(RoleManager)),
		AnyPermission(PermViewPerformance),
	)
	if !authorize(t, f, manager) {
		t.Fatal("manager must pass the nested expression")
	}
	if authorize(t, f, &User{Role: RoleStaff}) {
		t.Fatal("staff must fail the role branch")
	}
}

func TestCustomFilter(t *testing.T) {
	sameRestaurant := FilterFunc(func(_ context.Context, user *User, r *http.Request) (bool, error) {
		return user.RestaurantID == r.URL.Query().Get("restaurant_id"), nil
	})
	user := &User{Role: RoleStaff, RestaurantID: "r1"}

	r := httptest.NewRequest(http.MethodGet, "/v1/orders?restaurant_id=r1", nil)
	if ok, err := sameRestaurant.Authorize(context.Background(), user, r); err != nil || !ok {
		t.Fatalf("expected allow, got ok=%v err=%v", ok, err)
	}
	r = httptest.NewRequest(http.MethodGet, "/v1/orders?restaurant_id=r2", nil)
	if ok, _ := sameRestaurant.Authorize(context.Background(), user, r); ok {
		t.Fatal("expected deny for foreign restaurant")
	}
}

func TestFilterErrorFailsClosed(t *testing.T) {
	boom := FilterFunc(func(context.Context, *User, *http.Request) (bool, error) {
		return true, errors.New("lookup failed")
	})
	f := AnyOf(AnyRole(RoleAdmin), boom)

	r := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	ok, err := f.Authorize(context.Background(), &User{Role: RoleAdmin}, r)
	if err == nil {
		t.Fatal("expected evaluation error to propagate")
	}
	if ok {
		t.Fatal("an erroring filter must never authorize")
	}
}

func TestNilUserDenied(t *testing.T) {
	if authorize(t, AnyRole(RoleAdmin), nil) {
		t.Fatal("nil principal must be denied")
	}
	if authorize(t, AnyPermission(PermViewPerformance), nil) {
		t.Fatal("nil principal must be denied")
	}
}
