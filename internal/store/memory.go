package store

import (
	"context"
	"sort"
	"sync"

	"kslicense/internal/authz"
)

// MemoryStore is a mutex-guarded in-memory Authorization Store. It
// implements the same contract as BoltStore and backs engine tests and
// development mode.
type MemoryStore struct {
	mu        sync.Mutex
	allowlist map[string]authz.AllowlistEntry
	bindings  map[string]authz.LicenseBinding
	closed    bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		allowlist: make(map[string]authz.AllowlistEntry),
		bindings:  make(map[string]authz.LicenseBinding),
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetAllowlistEntry(ctx context.Context, email string) (*authz.AllowlistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.allowlist[email]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) CreateAllowlistEntry(ctx context.Context, entry authz.AllowlistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.allowlist[entry.Email]; ok && existing.Status != authz.StatusRevoked {
		return authz.ErrAlreadyAllowlisted
	}
	s.allowlist[entry.Email] = entry
	return nil
}

func (s *MemoryStore) GetBinding(ctx context.Context, email string) (*authz.LicenseBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[email]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return &binding, nil
}

func (s *MemoryStore) UpdateBinding(ctx context.Context, email string, fn func(current *authz.LicenseBinding) (*authz.LicenseBinding, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *authz.LicenseBinding
	if binding, ok := s.bindings[email]; ok {
		copied := binding
		current = &copied
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated != nil {
		s.bindings[email] = *updated
	}
	return nil
}

func (s *MemoryStore) ListActiveBindings(ctx context.Context) ([]authz.LicenseBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]authz.LicenseBinding, 0, len(s.bindings))
	for _, binding := range s.bindings {
		if binding.Status == authz.StatusActive {
			out = append(out, binding)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AuthorizedAt.After(out[j].AuthorizedAt)
	})
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, email string) (entryRevoked, bindingRevoked bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.allowlist[email]; ok && entry.Status != authz.StatusRevoked {
		entry.Status = authz.StatusRevoked
		s.allowlist[email] = entry
		entryRevoked = true
	}
	if binding, ok := s.bindings[email]; ok && binding.Status != authz.StatusRevoked {
		binding.Status = authz.StatusRevoked
		s.bindings[email] = binding
		bindingRevoked = true
	}
	return entryRevoked, bindingRevoked, nil
}
