// Package tenant provides tenant context plumbing and fail-closed isolation helpers.
//
// Collections are shared across tenants; isolation is enforced entirely through
// mandatory tenant filters on every read and write. A missing tenant is an error,
// never an empty result.
package tenant

import (
	"context"
	"errors"
)

// Tenant isolation error types - fail closed security model.
var (
	// ErrMissingTenant is returned when tenant info is missing from context or filters.
	ErrMissingTenant = errors.New("tenant info missing")

	// ErrInvalidTenant is returned when a tenant identifier is invalid.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// tenantContextKey is the context key for Info.
type tenantContextKey struct{}

// Info holds the tenant identity used to scope all storage operations.
//
// Security: TenantID is validated before use in any query or write.
type Info struct {
	// TenantID is the account identifier (required).
	TenantID string
}

// Validate checks that required fields are present and valid.
func (t *Info) Validate() error {
	if t == nil || t.TenantID == "" {
		return ErrInvalidTenant
	}
	return nil
}

// NewContext adds tenant Info to a context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, info)
}

// FromContext extracts tenant Info from a context.
// Returns ErrMissingTenant if not present - fail closed.
func FromContext(ctx context.Context) (*Info, error) {
	val := ctx.Value(tenantContextKey{})
	if val == nil {
		return nil, ErrMissingTenant
	}
	info, ok := val.(*Info)
	if !ok || info == nil {
		return nil, ErrMissingTenant
	}
	return info, nil
}

// Metadata returns the tenant tag injected into every stored payload.
func (t *Info) Metadata() map[string]interface{} {
	return map[string]interface{}{"tenant_id": t.TenantID}
}

// Filter returns the mandatory filter condition for queries in this tenant's scope.
func (t *Info) Filter() map[string]interface{} {
	return map[string]interface{}{"tenant_id": t.TenantID}
}
