package actorcontext

import (
	"context"
	"strings"
)

// ActorContextKey is the request context key for the acting identity.
type ActorContextKey struct{}

// WithActor stores the acting identity in the context. The identity is
// supplied by upstream authentication; an empty value is ignored.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, ActorContextKey{}, actor)
}

// ActorFromContext returns the acting identity from context, if set.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	value := ctx.Value(ActorContextKey{})
	if typed, ok := value.(string); ok && typed != "" {
		return typed, true
	}

	raw := ctx.Value("actor")
	if typed, ok := raw.(string); ok && typed != "" {
		return typed, true
	}
	return "", false
}
