package store

import (
	"context"
	"time"

	"kslicense/internal/authz"
)

// TimeoutStore bounds every call on the wrapped store with a deadline
// so a stalled database can never hold a request open indefinitely.
// Deadline hits surface as context.DeadlineExceeded, which the engine
// classifies as transient.
type TimeoutStore struct {
	inner   authz.Store
	timeout time.Duration
}

// WithTimeout wraps inner so each operation runs under timeout.
func WithTimeout(inner authz.Store, timeout time.Duration) *TimeoutStore {
	return &TimeoutStore{inner: inner, timeout: timeout}
}

func (s *TimeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *TimeoutStore) GetAllowlistEntry(ctx context.Context, email string) (*authz.AllowlistEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.GetAllowlistEntry(ctx, email)
}

func (s *TimeoutStore) CreateAllowlistEntry(ctx context.Context, entry authz.AllowlistEntry) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.CreateAllowlistEntry(ctx, entry)
}

func (s *TimeoutStore) GetBinding(ctx context.Context, email string) (*authz.LicenseBinding, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.GetBinding(ctx, email)
}

func (s *TimeoutStore) UpdateBinding(ctx context.Context, email string, fn func(current *authz.LicenseBinding) (*authz.LicenseBinding, error)) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.UpdateBinding(ctx, email, fn)
}

func (s *TimeoutStore) ListActiveBindings(ctx context.Context) ([]authz.LicenseBinding, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.ListActiveBindings(ctx)
}

func (s *TimeoutStore) Revoke(ctx context.Context, email string) (entryRevoked, bindingRevoked bool, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Revoke(ctx, email)
}

func (s *TimeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Ping(ctx)
}

func (s *TimeoutStore) Close() error { return s.inner.Close() }
