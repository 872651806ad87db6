// Package store provides Authorization Store implementations: a
// bbolt-backed durable store and an in-memory store for tests and
// development. Both satisfy the authz.Store contract, including the
// per-email write serialization the binding engine relies on.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"kslicense/internal/authz"
)

// Logical table names, mirrored as bolt buckets.
const (
	bucketAllowlist = "authorized_emails"
	bucketBindings  = "licenses"
)

// BoltStore persists allowlist entries and bindings as JSON rows keyed
// by normalized email. bbolt runs a single write transaction at a
// time, which gives the linearizable per-email updates the engine
// requires.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the database file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	st := &BoltStore{db: db}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketAllowlist)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketBindings))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create store buckets: %w", err)
	}
	return st, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error { return s.db.Close() }

// Ping verifies the database is readable.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketAllowlist)) == nil || tx.Bucket([]byte(bucketBindings)) == nil {
			return fmt.Errorf("store buckets missing")
		}
		return nil
	})
}

// GetAllowlistEntry returns the entry for email, or authz.ErrNotFound.
func (s *BoltStore) GetAllowlistEntry(ctx context.Context, email string) (*authz.AllowlistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry authz.AllowlistEntry
	if err := s.db.View(func(tx *bbolt.Tx) error {
		row := tx.Bucket([]byte(bucketAllowlist)).Get([]byte(email))
		if row == nil {
			return authz.ErrNotFound
		}
		return json.Unmarshal(row, &entry)
	}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateAllowlistEntry inserts a new entry. A non-revoked duplicate is
// rejected with authz.ErrAlreadyAllowlisted; a revoked entry is
// replaced by the fresh one.
func (s *BoltStore) CreateAllowlistEntry(ctx context.Context, entry authz.AllowlistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode allowlist entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketAllowlist))
		if existing := b.Get([]byte(entry.Email)); existing != nil {
			var current authz.AllowlistEntry
			if err := json.Unmarshal(existing, &current); err != nil {
				return fmt.Errorf("failed to decode allowlist row: %w", err)
			}
			if current.Status != authz.StatusRevoked {
				return authz.ErrAlreadyAllowlisted
			}
		}
		return b.Put([]byte(entry.Email), row)
	})
}

// GetBinding returns the binding for email, or authz.ErrNotFound.
func (s *BoltStore) GetBinding(ctx context.Context, email string) (*authz.LicenseBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var binding authz.LicenseBinding
	if err := s.db.View(func(tx *bbolt.Tx) error {
		row := tx.Bucket([]byte(bucketBindings)).Get([]byte(email))
		if row == nil {
			return authz.ErrNotFound
		}
		return json.Unmarshal(row, &binding)
	}); err != nil {
		return nil, err
	}
	return &binding, nil
}

// UpdateBinding applies fn to the current binding for email inside a
// single write transaction.
func (s *BoltStore) UpdateBinding(ctx context.Context, email string, fn func(current *authz.LicenseBinding) (*authz.LicenseBinding, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketBindings))

		var current *authz.LicenseBinding
		if row := b.Get([]byte(email)); row != nil {
			var binding authz.LicenseBinding
			if err := json.Unmarshal(row, &binding); err != nil {
				return fmt.Errorf("failed to decode binding row: %w", err)
			}
			current = &binding
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}
		if updated == nil {
			return nil
		}

		row, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode binding: %w", err)
		}
		return b.Put([]byte(email), row)
	})
}

// ListActiveBindings returns active bindings ordered by AuthorizedAt
// descending.
func (s *BoltStore) ListActiveBindings(ctx context.Context) ([]authz.LicenseBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]authz.LicenseBinding, 0)
	if err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketBindings)).ForEach(func(_, v []byte) error {
			var binding authz.LicenseBinding
			if err := json.Unmarshal(v, &binding); err != nil {
				return fmt.Errorf("failed to decode binding row: %w", err)
			}
			if binding.Status == authz.StatusActive {
				out = append(out, binding)
			}
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AuthorizedAt.After(out[j].AuthorizedAt)
	})
	return out, nil
}

// Revoke marks the allowlist entry and binding for email revoked, each
// if present, in one transaction.
func (s *BoltStore) Revoke(ctx context.Context, email string) (entryRevoked, bindingRevoked bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, false, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		allowlist := tx.Bucket([]byte(bucketAllowlist))
		if row := allowlist.Get([]byte(email)); row != nil {
			var entry authz.AllowlistEntry
			if err := json.Unmarshal(row, &entry); err != nil {
				return fmt.Errorf("failed to decode allowlist row: %w", err)
			}
			if entry.Status != authz.StatusRevoked {
				entry.Status = authz.StatusRevoked
				updated, err := json.Marshal(entry)
				if err != nil {
					return err
				}
				if err := allowlist.Put([]byte(email), updated); err != nil {
					return err
				}
				entryRevoked = true
			}
		}

		bindings := tx.Bucket([]byte(bucketBindings))
		if row := bindings.Get([]byte(email)); row != nil {
			var binding authz.LicenseBinding
			if err := json.Unmarshal(row, &binding); err != nil {
				return fmt.Errorf("failed to decode binding row: %w", err)
			}
			if binding.Status != authz.StatusRevoked {
				binding.Status = authz.StatusRevoked
				updated, err := json.Marshal(binding)
				if err != nil {
					return err
				}
				if err := bindings.Put([]byte(email), updated); err != nil {
					return err
				}
				bindingRevoked = true
			}
		}
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return entryRevoked, bindingRevoked, nil
}
