package authz

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store lookups when no row exists for the
// given email.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract the engine depends on. Rows are
// keyed by normalized email in two logical tables: authorized_emails
// (allowlist entries) and licenses (bindings).
//
// Implementations must serialize writes per email key: UpdateBinding
// calls for the same email are linearizable, so concurrent authorize
// requests cannot both create a binding. Calls for different emails may
// proceed independently.
type Store interface {
	// GetAllowlistEntry returns the allowlist entry for email, or
	// ErrNotFound.
	GetAllowlistEntry(ctx context.Context, email string) (*AllowlistEntry, error)

	// CreateAllowlistEntry inserts a new entry. It fails with
	// ErrAlreadyAllowlisted when a non-revoked entry exists; a revoked
	// entry is replaced by the fresh one (the re-add path after an
	// administrative revocation).
	CreateAllowlistEntry(ctx context.Context, entry AllowlistEntry) error

	// GetBinding returns the binding for email, or ErrNotFound.
	GetBinding(ctx context.Context, email string) (*LicenseBinding, error)

	// UpdateBinding atomically reads the current binding for email (nil
	// when none exists) and applies fn under the store's per-email write
	// serialization. When fn returns a non-nil binding it replaces the
	// stored row in the same transaction; returning (nil, nil) leaves
	// the state unchanged. An error from fn aborts the update and is
	// returned verbatim.
	UpdateBinding(ctx context.Context, email string, fn func(current *LicenseBinding) (*LicenseBinding, error)) error

	// ListActiveBindings returns all bindings with StatusActive ordered
	// by AuthorizedAt descending.
	ListActiveBindings(ctx context.Context) ([]LicenseBinding, error)

	// Revoke sets the allowlist entry and the binding for email to
	// StatusRevoked, each if present, in a single transaction. It
	// reports which of the two rows were transitioned; revoking an
	// email with neither row is a no-op, not an error.
	Revoke(ctx context.Context, email string) (entryRevoked, bindingRevoked bool, err error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
