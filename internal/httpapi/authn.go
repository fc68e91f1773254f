package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"forkline.io/internal/auth"
	"forkline.io/internal/fault"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token into a fresh principal on every
// request. Paths matching a configured public pattern pass through
// anonymously.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.ctrl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if a.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.ctrl.VerifyToken(r.Context(), token)
		if err != nil {
			if fault.IsKind(err, fault.Unauthorized) {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			handleFault(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) isPublicPath(path string) bool {
	for _, re := range a.publicPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// gated wraps a handler with an authorization filter. The gate runs
// before the handler; denial never reaches business logic.
func (a *API) gated(f auth.Filter, h http.HandlerFunc) http.HandlerFunc {
	gate := a.ctrl.Requires(f)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gate(r); err != nil {
			handleFault(w, r, err)
			return
		}
		h(w, r)
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// principal returns the authenticated user or an unauthorized fault.
func principal(r *http.Request) (*auth.User, error) {
	u, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return nil, fault.Unauthorizedf("not authenticated")
	}
	return u, nil
}
