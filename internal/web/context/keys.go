// Package context holds the request scoped values shared by the HTTP layer,
// the resolver chain and the storage orchestrator.
package context

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	modelKey
	allowedEntitiesKey
	trustedKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetModel returns the model name of the branch currently being resolved
func GetModel(ctx context.Context) string {
	if m, ok := ctx.Value(modelKey).(string); ok {
		return m
	}
	return ""
}

// SetModel sets the model name for the branch below a root field
func SetModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey, model)
}

// GetAllowedEntities returns the entity allow-list attached by the
// authorization gate. The second result is false when reads are unscoped.
func GetAllowedEntities(ctx context.Context) ([]string, bool) {
	entities, ok := ctx.Value(allowedEntitiesKey).([]string)
	return entities, ok && entities != nil
}

// SetAllowedEntities attaches an entity allow-list for downstream storage calls
func SetAllowedEntities(ctx context.Context, entities []string) context.Context {
	return context.WithValue(ctx, allowedEntitiesKey, entities)
}

// ClearAllowedEntities removes an inherited allow-list
func ClearAllowedEntities(ctx context.Context) context.Context {
	if _, ok := GetAllowedEntities(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, allowedEntitiesKey, []string(nil))
}

// IsTrusted returns true for internal executions that bypass authorization
func IsTrusted(ctx context.Context) bool {
	trusted, _ := ctx.Value(trustedKey).(bool)
	return trusted
}

// SetTrusted marks the execution as internal
func SetTrusted(ctx context.Context, trusted bool) context.Context {
	return context.WithValue(ctx, trustedKey, trusted)
}
