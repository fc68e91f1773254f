// Package audit emits structured audit events for security-relevant
// actions: logins, registrations, privileged mutations.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"forkline.io/internal/auth"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context so audit
// events can be correlated with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Auditor writes audit events through a structured logger. The zero
// value is unusable; construct with New.
type Auditor struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{log: log.Named("audit")}
}

// Event records one audit entry enriched with request and principal
// context.
func (a *Auditor) Event(ctx context.Context, event string, fields ...zap.Field) {
	if a == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	enriched := make([]zap.Field, 0, len(fields)+3)
	enriched = append(enriched, zap.String("type", "audit"))
	if rid := requestIDFromContext(ctx); rid != "" {
		enriched = append(enriched, zap.String("request_id", rid))
	}
	if u, ok := auth.PrincipalFromContext(ctx); ok {
		enriched = append(enriched, zap.String("user_id", u.ID))
	}
	enriched = append(enriched, fields...)
	a.log.Info(event, enriched...)
}
