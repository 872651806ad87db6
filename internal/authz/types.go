package authz

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an allowlist entry or binding.
type Status string

const (
	StatusActive  Status = "Active"
	StatusRevoked Status = "Revoked"
)

// AllowlistEntry records one email address permitted to obtain a license.
type AllowlistEntry struct {
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// LicenseBinding is the single device association for one email.
//
// While Status is Active the MachineID is immutable; changing devices
// requires an administrative revoke followed by re-allowlisting.
type LicenseBinding struct {
	Email        string     `json:"email"`
	MachineID    string     `json:"machine_id"`
	ComputerName string     `json:"computer_name,omitempty"`
	Status       Status     `json:"status"`
	AuthorizedAt time.Time  `json:"authorized_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
}

// Decision is the outcome of a successful Authorize call.
type Decision struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason"`
	NewBinding bool   `json:"new_binding"`
}

// RevokeResult reports which records a RevokeAccess call transitioned.
type RevokeResult struct {
	Email          string `json:"email"`
	EntryRevoked   bool   `json:"entry_revoked"`
	BindingRevoked bool   `json:"binding_revoked"`
}

// NormalizeEmail lowercases and trims an email address. All comparisons
// and store keys use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
