package tenant

import "errors"

// reservedFilterKeys are keys that cannot appear in caller-supplied filters.
var reservedFilterKeys = []string{"tenant_id"}

// ErrReservedFilterKey indicates a caller tried to inject tenant fields directly.
var ErrReservedFilterKey = errors.New("caller filters cannot contain tenant fields")

// ApplyFilter merges caller filters with the tenant filter, enforcing that the
// tenant condition always wins and cannot be spoofed from the outside.
//
// Returns ErrReservedFilterKey if callerFilters contains tenant_id.
func ApplyFilter(info *Info, callerFilters map[string]interface{}) (map[string]interface{}, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	for _, key := range reservedFilterKeys {
		if _, exists := callerFilters[key]; exists {
			return nil, ErrReservedFilterKey
		}
	}

	result := make(map[string]interface{}, len(callerFilters)+1)
	for k, v := range callerFilters {
		result[k] = v
	}
	result["tenant_id"] = info.TenantID
	return result, nil
}

// ValidateFilter checks that a filter map carries a usable tenant condition.
// Returns ErrMissingTenant if tenant_id is absent, ErrInvalidTenant if empty
// or not a string.
func ValidateFilter(filters map[string]interface{}) error {
	if filters == nil {
		return ErrMissingTenant
	}
	val, ok := filters["tenant_id"]
	if !ok {
		return ErrMissingTenant
	}
	tid, ok := val.(string)
	if !ok || tid == "" {
		return ErrInvalidTenant
	}
	return nil
}

// ValidateMetadata checks that a payload map carries the tenant tag.
// Writes without a tenant tag are rejected - fail closed.
func ValidateMetadata(payload map[string]interface{}) error {
	return ValidateFilter(payload)
}
