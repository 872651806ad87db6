package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kslicense/internal/authz"
)

// contract tests run against every Store implementation.
func forEachStore(t *testing.T, run func(t *testing.T, s authz.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := NewMemory()
		t.Cleanup(func() { _ = s.Close() })
		run(t, s)
	})

	t.Run("bolt", func(t *testing.T) {
		s, err := OpenBolt(filepath.Join(t.TempDir(), "licenses.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		run(t, s)
	})

	t.Run("timeout-wrapped", func(t *testing.T) {
		s := WithTimeout(NewMemory(), 5*time.Second)
		t.Cleanup(func() { _ = s.Close() })
		run(t, s)
	})
}

func activeBinding(email, machineID string, authorizedAt time.Time) *authz.LicenseBinding {
	lastUsed := authorizedAt
	return &authz.LicenseBinding{
		Email:        email,
		MachineID:    machineID,
		ComputerName: "PC-" + machineID,
		Status:       authz.StatusActive,
		AuthorizedAt: authorizedAt,
		LastUsed:     &lastUsed,
	}
}

func TestStore_AllowlistRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()

		_, err := s.GetAllowlistEntry(ctx, "nobody@kaohsin.com.tw")
		assert.ErrorIs(t, err, authz.ErrNotFound)

		entry := authz.AllowlistEntry{
			Email:     "alice@kaohsin.com.tw",
			Status:    authz.StatusActive,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, s.CreateAllowlistEntry(ctx, entry))

		got, err := s.GetAllowlistEntry(ctx, entry.Email)
		require.NoError(t, err)
		assert.Equal(t, entry.Email, got.Email)
		assert.Equal(t, authz.StatusActive, got.Status)

		// Duplicate insert is rejected while the entry is not revoked.
		err = s.CreateAllowlistEntry(ctx, entry)
		assert.ErrorIs(t, err, authz.ErrAlreadyAllowlisted)

		// After revocation a fresh add replaces the revoked entry.
		_, _, err = s.Revoke(ctx, entry.Email)
		require.NoError(t, err)
		require.NoError(t, s.CreateAllowlistEntry(ctx, entry))

		got, err = s.GetAllowlistEntry(ctx, entry.Email)
		require.NoError(t, err)
		assert.Equal(t, authz.StatusActive, got.Status)
	})
}

func TestStore_UpdateBindingCreateAndRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		_, err := s.GetBinding(ctx, "alice@kaohsin.com.tw")
		assert.ErrorIs(t, err, authz.ErrNotFound)

		err = s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(current *authz.LicenseBinding) (*authz.LicenseBinding, error) {
			require.Nil(t, current)
			return activeBinding("alice@kaohsin.com.tw", "m1", now), nil
		})
		require.NoError(t, err)

		got, err := s.GetBinding(ctx, "alice@kaohsin.com.tw")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.MachineID)
		assert.Equal(t, authz.StatusActive, got.Status)
		require.NotNil(t, got.LastUsed)
	})
}

func TestStore_UpdateBindingErrorLeavesStateUnchanged(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(*authz.LicenseBinding) (*authz.LicenseBinding, error) {
			return activeBinding("alice@kaohsin.com.tw", "m1", now), nil
		}))

		conflict := &authz.MachineConflictError{ComputerName: "PC-m1"}
		err := s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(current *authz.LicenseBinding) (*authz.LicenseBinding, error) {
			require.NotNil(t, current)
			return nil, conflict
		})
		assert.ErrorIs(t, err, authz.ErrMachineConflict)

		got, err := s.GetBinding(ctx, "alice@kaohsin.com.tw")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.MachineID)
	})
}

func TestStore_ListActiveBindingsOrderAndFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		emails := []struct {
			email  string
			offset time.Duration
			status authz.Status
		}{
			{"old@kaohsin.com.tw", -2 * time.Hour, authz.StatusActive},
			{"new@kaohsin.com.tw", 0, authz.StatusActive},
			{"mid@kaohsin.com.tw", -1 * time.Hour, authz.StatusActive},
			{"gone@kaohsin.com.tw", -30 * time.Minute, authz.StatusRevoked},
		}
		for _, e := range emails {
			binding := activeBinding(e.email, "m-"+e.email, base.Add(e.offset))
			binding.Status = e.status
			require.NoError(t, s.UpdateBinding(ctx, e.email, func(*authz.LicenseBinding) (*authz.LicenseBinding, error) {
				return binding, nil
			}))
		}

		got, err := s.ListActiveBindings(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "new@kaohsin.com.tw", got[0].Email)
		assert.Equal(t, "mid@kaohsin.com.tw", got[1].Email)
		assert.Equal(t, "old@kaohsin.com.tw", got[2].Email)
	})
}

func TestStore_RevokeIsIdempotentAndBestEffort(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		// Neither row exists: valid no-op.
		entryRevoked, bindingRevoked, err := s.Revoke(ctx, "ghost@kaohsin.com.tw")
		require.NoError(t, err)
		assert.False(t, entryRevoked)
		assert.False(t, bindingRevoked)

		// Entry only.
		require.NoError(t, s.CreateAllowlistEntry(ctx, authz.AllowlistEntry{
			Email: "alice@kaohsin.com.tw", Status: authz.StatusActive, CreatedAt: now,
		}))
		entryRevoked, bindingRevoked, err = s.Revoke(ctx, "alice@kaohsin.com.tw")
		require.NoError(t, err)
		assert.True(t, entryRevoked)
		assert.False(t, bindingRevoked)

		// Repeat is idempotent.
		entryRevoked, bindingRevoked, err = s.Revoke(ctx, "alice@kaohsin.com.tw")
		require.NoError(t, err)
		assert.False(t, entryRevoked)
		assert.False(t, bindingRevoked)

		// Binding revoked independently of the already-revoked entry.
		require.NoError(t, s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(*authz.LicenseBinding) (*authz.LicenseBinding, error) {
			return activeBinding("alice@kaohsin.com.tw", "m1", now), nil
		}))
		entryRevoked, bindingRevoked, err = s.Revoke(ctx, "alice@kaohsin.com.tw")
		require.NoError(t, err)
		assert.False(t, entryRevoked)
		assert.True(t, bindingRevoked)

		bindings, err := s.ListActiveBindings(ctx)
		require.NoError(t, err)
		assert.Empty(t, bindings)
	})
}

func TestStore_ConcurrentUpdateBindingSerializes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		const email = "race@kaohsin.com.tw"

		// Two concurrent create attempts with different machines:
		// exactly one creates the binding, the other must observe it.
		attempt := func(machineID string) error {
			return s.UpdateBinding(ctx, email, func(current *authz.LicenseBinding) (*authz.LicenseBinding, error) {
				if current == nil {
					return activeBinding(email, machineID, now), nil
				}
				if current.MachineID == machineID {
					return nil, nil
				}
				return nil, &authz.MachineConflictError{ComputerName: current.ComputerName}
			})
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, machine := range []string{"m1", "m2"} {
			wg.Add(1)
			go func(i int, machine string) {
				defer wg.Done()
				errs[i] = attempt(machine)
			}(i, machine)
		}
		wg.Wait()

		conflicts := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, authz.ErrMachineConflict)
				conflicts++
			}
		}
		assert.Equal(t, 1, conflicts, "exactly one attempt must lose the race")

		got, err := s.GetBinding(ctx, email)
		require.NoError(t, err)
		assert.Contains(t, []string{"m1", "m2"}, got.MachineID)
	})
}

func TestStore_ContextCancellation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s authz.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.GetAllowlistEntry(ctx, "alice@kaohsin.com.tw")
		assert.ErrorIs(t, err, context.Canceled)

		err = s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(*authz.LicenseBinding) (*authz.LicenseBinding, error) {
			t.Fatal("update fn must not run after cancellation")
			return nil, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOpenBolt_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.db")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateAllowlistEntry(ctx, authz.AllowlistEntry{
		Email: "alice@kaohsin.com.tw", Status: authz.StatusActive, CreatedAt: now,
	}))
	require.NoError(t, s.UpdateBinding(ctx, "alice@kaohsin.com.tw", func(*authz.LicenseBinding) (*authz.LicenseBinding, error) {
		return activeBinding("alice@kaohsin.com.tw", "m1", now), nil
	}))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	entry, err := s.GetAllowlistEntry(ctx, "alice@kaohsin.com.tw")
	require.NoError(t, err)
	assert.Equal(t, authz.StatusActive, entry.Status)

	binding, err := s.GetBinding(ctx, "alice@kaohsin.com.tw")
	require.NoError(t, err)
	assert.Equal(t, "m1", binding.MachineID)
	assert.True(t, binding.AuthorizedAt.Equal(now))
}
