package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"forkline.io/internal/fault"
)

// Claims are the verified token claims. Subject carries the principal's login
// identifier (email); the full user record is re-resolved on every request.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenStrategy issues and verifies bearer credentials.
type TokenStrategy interface {
	CreateToken(user *User) (string, error)
	VerifyToken(token string) (*Claims, error)
}

// JWTStrategy signs compact JWTs with a server-held symmetric secret (HS256).
// Tokens carry an enforced expiry claim.
type JWTStrategy struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

var _ TokenStrategy = (*JWTStrategy)(nil)

// JWTOption configures JWTStrategy.
type JWTOption func(*JWTStrategy)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) JWTOption {
	return func(s *JWTStrategy) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewJWTStrategy constructs the strategy. secret and ttl are mandatory.
func NewJWTStrategy(secret, issuer string, ttl time.Duration, opts ...JWTOption) (*JWTStrategy, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	s := &JWTStrategy{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateToken signs a token whose sub claim is the user's email.
func (s *JWTStrategy) CreateToken(user *User) (string, error) {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return "", errors.New("auth: user email is required")
	}
	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strings.ToLower(user.Email),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken checks signature, algorithm and expiry. Every verification
// failure surfaces as an unauthorized fault; it never returns a false valid.
func (s *JWTStrategy) VerifyToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fault.Unauthorizedf("invalid or expired token")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fault.Unauthorizedf("invalid or expired token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fault.Unauthorizedf("invalid or expired token")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fault.Unauthorizedf("invalid or expired token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fault.Unauthorizedf("invalid or expired token")
	}
	return claims, nil
}
