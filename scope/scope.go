// Package scope provides helpers to capture and restore multi-tenant
// execution context (tenant identity) from/to context.Context.
//
// Engine operations capture the tenant at the boundary and stamp it onto
// the entities they create; background work (the escalation scheduler)
// restores it before acting on a tenant's behalf.
package scope

import "context"

type ctxKey struct{}

// Capture extracts the tenant identifier from the context.
// Returns an empty string if no scope is present.
func Capture(ctx context.Context) (tenantID string) {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Restore attaches a tenant scope to the context. If tenantID is empty,
// the context is returned unchanged (no-op).
func Restore(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tenantID)
}
