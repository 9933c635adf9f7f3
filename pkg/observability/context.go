package observability

import (
	"context"

	"github.com/google/uuid"
)

// Attribute keys shared by logs and event metadata.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	UserIDKey        = "user_id"
)

// Scope identifies the unit of work a log line or event belongs to. A payment
// event keeps its correlation id through the saga and into the outbox, so the
// resulting SubscriptionActivated and RoleGranted events can be traced back.
type Scope struct {
	CorrelationID string
	RequestID     string
	UserID        string
}

type scopeKey struct{}

// ScopeFrom returns the scope stored in ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

func withScope(ctx context.Context, update func(*Scope)) context.Context {
	s := ScopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithCorrelationID sets the correlation id, generating one when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withScope(ctx, func(s *Scope) { s.CorrelationID = id })
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return ScopeFrom(ctx).CorrelationID
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return ScopeFrom(ctx).RequestID
}

// WithUserID records the authenticated user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withScope(ctx, func(s *Scope) { s.UserID = userID })
}

// UserIDFromContext returns the authenticated user, or "".
func UserIDFromContext(ctx context.Context) string {
	return ScopeFrom(ctx).UserID
}

// NewRequestContext starts a scope for an inbound request with a fresh request
// id. The caller's correlation id is kept when given.
func NewRequestContext(ctx context.Context, parentCorrelationID string) context.Context {
	if parentCorrelationID == "" {
		parentCorrelationID = uuid.NewString()
	}
	return withScope(ctx, func(s *Scope) {
		s.RequestID = uuid.NewString()
		s.CorrelationID = parentCorrelationID
	})
}

// attrs returns the non-empty scope fields as log attributes.
func (s Scope) attrs() []any {
	var out []any
	if s.CorrelationID != "" {
		out = append(out, CorrelationIDKey, s.CorrelationID)
	}
	if s.RequestID != "" {
		out = append(out, RequestIDKey, s.RequestID)
	}
	if s.UserID != "" {
		out = append(out, UserIDKey, s.UserID)
	}
	return out
}
