package http

import (
	"context"

	"kslicense/internal/authz"
)

// AuthzService is the slice of the authorization engine the handlers
// depend on. Declared here so handler tests can mock it.
type AuthzService interface {
	Authorize(ctx context.Context, email, machineID, computerName string) (*authz.Decision, error)
	AddToAllowlist(ctx context.Context, email string) (*authz.AllowlistEntry, error)
	RevokeAccess(ctx context.Context, email string) (*authz.RevokeResult, error)
	ListActiveBindings(ctx context.Context) ([]authz.LicenseBinding, error)
}

// StorePinger reports Authorization Store reachability for health
// checks.
type StorePinger interface {
	Ping(ctx context.Context) error
}
