package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AddToAllowlist permits email to obtain a license. The email must
// belong to the organization domain and must not already have a
// non-revoked allowlist entry. Re-adding a revoked email creates a
// fresh entry; this is the only path to a device change.
func (s *Service) AddToAllowlist(ctx context.Context, email string) (entry *AllowlistEntry, err error) {
	defer func() { s.metrics.recordAdmin(ctx, "add_to_allowlist", err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	if !strings.HasSuffix(email, s.orgDomain) {
		return nil, ErrInvalidDomain
	}

	e := AllowlistEntry{
		Email:     email,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAllowlistEntry(ctx, e); err != nil {
		if errors.Is(err, ErrAlreadyAllowlisted) {
			return nil, ErrAlreadyAllowlisted
		}
		return nil, s.storeError(ctx, "create allowlist entry", err)
	}

	s.logger.InfoContext(ctx, "email allowlisted",
		slog.String("operation", "add_to_allowlist"),
		slog.String("email", email),
	)
	return &e, nil
}

// RevokeAccess revokes the allowlist entry and the binding for email,
// each if present. The dual update is best-effort by design: revoking
// an entry with no binding is valid, as is revoking a binding whose
// entry was already revoked, and repeating the call is idempotent.
func (s *Service) RevokeAccess(ctx context.Context, email string) (result *RevokeResult, err error) {
	defer func() { s.metrics.recordAdmin(ctx, "revoke_access", err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	entryRevoked, bindingRevoked, err := s.store.Revoke(ctx, email)
	if err != nil {
		return nil, s.storeError(ctx, "revoke", err)
	}

	s.logger.InfoContext(ctx, "access revoked",
		slog.String("operation", "revoke_access"),
		slog.String("email", email),
		slog.Bool("entry_revoked", entryRevoked),
		slog.Bool("binding_revoked", bindingRevoked),
	)
	return &RevokeResult{
		Email:          email,
		EntryRevoked:   entryRevoked,
		BindingRevoked: bindingRevoked,
	}, nil
}

// ListActiveBindings returns all active bindings, most recently
// authorized first.
func (s *Service) ListActiveBindings(ctx context.Context) (bindings []LicenseBinding, err error) {
	defer func() { s.metrics.recordAdmin(ctx, "list_active_bindings", err) }()

	bindings, err = s.store.ListActiveBindings(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "list active bindings", err)
	}
	return bindings, nil
}
