package auth

import (
	"context"
	"net/http"
)

// Filter is a composable authorization predicate evaluated per request.
// A non-nil error always denies the request (fail closed).
type Filter interface {
	Authorize(ctx context.Context, user *User, r *http.Request) (bool, error)
}

// FilterFunc adapts an arbitrary predicate into a Filter.
type FilterFunc func(ctx context.Context, user *User, r *http.Request) (bool, error)

func (f FilterFunc) Authorize(ctx context.Context, user *User, r *http.Request) (bool, error) {
	return f(ctx, user, r)
}

type roleFilter struct {
	roles    []Role
	matchAny bool
}

// AnyRole matches when the user's role is one of the required roles.
func AnyRole(roles ...Role) Filter { return roleFilter{roles: roles, matchAny: true} }

// AllRoles matches only when every required role equals the user's role.
// A user holds exactly one role, so a list longer than one never matches
// unless it repeats that role.
func AllRoles(roles ...Role) Filter { return roleFilter{roles: roles} }

func (f roleFilter) Authorize(_ context.Context, user *User, _ *http.Request) (bool, error) {
	if user == nil || len(f.roles) == 0 {
		return false, nil
	}
	if f.matchAny {
		for _, role := range f.roles {
			if user.Role == role {
				return true, nil
			}
		}
		return false, nil
	}
	for _, role := range f.roles {
		if user.Role != role {
			return false, nil
		}
	}
	return true, nil
}

type permissionFilter struct {
	perms    []string
	matchAny bool
}

// AnyPermission matches when the user holds at least one of the keys.
func AnyPermission(perms ...string) Filter { return permissionFilter{perms: perms, matchAny: true} }

// AllPermissions matches when the user holds every key.
func AllPermissions(perms ...string) Filter { return permissionFilter{perms: perms} }

func (f permissionFilter) Authorize(_ context.Context, user *User, _ *http.Request) (bool, error) {
	if user == nil || len(f.perms) == 0 {
		return false, nil
	}
	if f.matchAny {
		for _, p := range f.perms {
			if user.HasPermission(p) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, p := range f.perms {
		if !user.HasPermission(p) {
			return false, nil
		}
	}
	return true, nil
}

type compositeFilter struct {
	children []Filter
	matchAny bool
}

// AnyOf reduces child filters with logical OR.
func AnyOf(filters ...Filter) Filter { return compositeFilter{children: filters, matchAny: true} }

// AllOf reduces child filters with logical AND.
func AllOf(filters ...Filter) Filter { return compositeFilter{children: filters} }

// Authorize evaluates every child; the first evaluation error denies the
// request and propagates.
func (f compositeFilter) Authorize(ctx context.Context, user *User, r *http.Request) (bool, error) {
	if len(f.children) == 0 {
		return false, nil
	}
	result := !f.matchAny
	for _, child := range f.children {
		ok, err := child.Authorize(ctx, user, r)
		if err != nil {
			return false, err
		}
		if f.matchAny {
			result = result || ok
		} else {
			result = result && ok
		}
	}
	return result, nil
}
