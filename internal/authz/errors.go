package authz

import (
	"errors"
	"fmt"
)

// Deterministic validation failures. These are never retried and are
// reported verbatim to the caller.
var (
	// ErrDomainNotAllowed rejects authorization for emails outside the
	// organization domain.
	ErrDomainNotAllowed = errors.New("email domain is not allowed")

	// ErrNotAllowlisted rejects authorization for emails with no active
	// allowlist entry.
	ErrNotAllowlisted = errors.New("email is not allowlisted")

	// ErrMachineConflict rejects authorization from a machine other than
	// the one currently bound. Match target for MachineConflictError.
	ErrMachineConflict = errors.New("email is bound to another machine")

	// ErrInvalidDomain rejects allowlisting an email outside the
	// organization domain.
	ErrInvalidDomain = errors.New("email domain is invalid")

	// ErrAlreadyAllowlisted rejects re-adding an email that already has
	// an active allowlist entry. Revoked entries are replaced instead.
	ErrAlreadyAllowlisted = errors.New("email is already allowlisted")

	// ErrInvalidRequest rejects structurally invalid input, e.g. an
	// empty machine identifier.
	ErrInvalidRequest = errors.New("invalid request")
)

// Store failure classes. The concrete cause is logged; callers see only
// the class.
var (
	// ErrStoreUnavailable marks transient store failures such as
	// timeouts. Match target for StoreError.
	ErrStoreUnavailable = errors.New("authorization store unavailable")

	// ErrStoreFailure marks unexpected store failures such as corrupt
	// rows. Match target for StoreError.
	ErrStoreFailure = errors.New("authorization store failure")
)

// MachineConflictError carries the display name of the computer that
// already holds the binding, so the caller can self-serve without
// leaking other users' emails.
type MachineConflictError struct {
	ComputerName string
}

func (e *MachineConflictError) Error() string {
	if e.ComputerName == "" {
		return "email is already bound to another machine"
	}
	return fmt.Sprintf("email is already bound to another machine (%s)", e.ComputerName)
}

// Is makes errors.Is(err, ErrMachineConflict) match.
func (e *MachineConflictError) Is(target error) bool {
	return target == ErrMachineConflict
}

// StoreError wraps a store failure with its operation and transience
// classification.
type StoreError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	class := "store failure"
	if e.Transient {
		class = "store unavailable"
	}
	return fmt.Sprintf("%s during %s: %v", class, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match ErrStoreUnavailable or ErrStoreFailure
// according to the transience classification.
func (e *StoreError) Is(target error) bool {
	if e.Transient {
		return target == ErrStoreUnavailable
	}
	return target == ErrStoreFailure
}

// IsValidationError reports whether err is a deterministic rejection as
// opposed to a store failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDomainNotAllowed) ||
		errors.Is(err, ErrNotAllowlisted) ||
		errors.Is(err, ErrMachineConflict) ||
		errors.Is(err, ErrInvalidDomain) ||
		errors.Is(err, ErrAlreadyAllowlisted) ||
		errors.Is(err, ErrInvalidRequest)
}
