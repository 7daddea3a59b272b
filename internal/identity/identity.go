// Package identity maps logical documents to stable storage keys.
//
// The resolver is pure and deterministic: identical (tenant, source) inputs
// always yield the identical id, across calls and process restarts. The id is
// the primary concurrency-safety mechanism for sync - two racing writers
// converge on the same key, and the store's replace-by-id upsert collapses
// them into one entry.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Separator joins tenant and source ids in the stable string form.
const Separator = "_"

// ErrInvalidKey indicates an id component that would break injectivity.
var ErrInvalidKey = errors.New("invalid identity component")

// pointNamespace is the fixed UUIDv5 namespace for point ids.
// Never change this value: it would re-key every stored entry.
var pointNamespace = uuid.MustParse("9b1cde12-4c5a-5e6f-8a3b-2d7f90c41e88")

// Resolve returns the stable storage id for a logical document.
//
// The form is "{tenantID}_{sourceID}", e.g. ("t1", "42") -> "t1_42".
// Injectivity over the valid domain is guaranteed by Validate, which rejects
// tenant ids containing the separator.
func Resolve(tenantID, sourceID string) string {
	return tenantID + Separator + sourceID
}

// Validate checks that id components are non-empty and injective under Resolve.
// Tenant ids containing the separator are rejected: ("a_b","c") and ("a","b_c")
// would otherwise resolve to the same key.
func Validate(tenantID, sourceID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidKey)
	}
	if sourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidKey)
	}
	if strings.Contains(tenantID, Separator) {
		return fmt.Errorf("%w: tenant id %q contains separator %q", ErrInvalidKey, tenantID, Separator)
	}
	return nil
}

// PointUUID derives the deterministic UUID point id for stores that key
// points by UUID. Same input id, same UUID, always.
func PointUUID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}
