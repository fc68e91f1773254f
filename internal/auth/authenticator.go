package auth

import (
	"context"
	"strings"

	"forkline.io/internal/fault"
)

// UserSource resolves principals from persistent storage. Implementations
// return a not-found fault when no user matches.
type UserSource interface {
	ByEmail(ctx context.Context, email string) (*User, error)
}

// Authenticator verifies a principal's credentials. Implementations return
// (nil, nil) when the credentials do not match — absent user and wrong
// password are indistinguishable to callers.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// DatabaseAuthenticator checks a username/password pair against stored users.
type DatabaseAuthenticator struct {
	users UserSource
}

var _ Authenticator = (*DatabaseAuthenticator)(nil)

func NewDatabaseAuthenticator(users UserSource) *DatabaseAuthenticator {
	return &DatabaseAuthenticator{users: users}
}

// Authenticate looks the user up by email and verifies the password hash.
func (a *DatabaseAuthenticator) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, nil
	}
	user, err := a.users.ByEmail(ctx, username)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, nil
	}
	return user, nil
}
