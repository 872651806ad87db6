package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service is the binding engine plus its administrative operations. It
// is safe for concurrent use; the only shared resource is the Store.
type Service struct {
	store     Store
	orgDomain string
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewService creates the engine. orgDomain is the required email suffix
// including the leading "@", e.g. "@kaohsin.com.tw".
func NewService(store Store, orgDomain string, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	orgDomain = strings.ToLower(strings.TrimSpace(orgDomain))
	if !strings.HasPrefix(orgDomain, "@") {
		return nil, fmt.Errorf("org domain must start with '@', got %q", orgDomain)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return &Service{
		store:     store,
		orgDomain: orgDomain,
		logger:    logger.With(slog.String("component", "authz")),
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Authorize decides whether (email, machineID) may use the software.
//
// Checks run in precedence order: domain policy, then allowlist, then
// binding state. The domain check runs before any store read so domain
// policy cannot leak allowlist membership for out-of-domain addresses.
// A first request for an allowlisted email creates the binding; a
// repeat request from the bound machine renews it (LastUsed only); a
// request from any other machine is rejected without mutation.
func (s *Service) Authorize(ctx context.Context, email, machineID, computerName string) (*Decision, error) {
	start := time.Now()
	email = NormalizeEmail(email)
	machineID = strings.TrimSpace(machineID)
	computerName = strings.TrimSpace(computerName)

	s.metrics.recordAttempt(ctx)

	logger := s.logger.With(
		slog.String("operation", "authorize"),
		slog.String("email", email),
		slog.String("computer_name", computerName),
	)

	if machineID == "" {
		s.metrics.recordAuthorize(ctx, "invalid_request", start)
		return nil, fmt.Errorf("%w: machine_id is required", ErrInvalidRequest)
	}

	if !strings.HasSuffix(email, s.orgDomain) {
		s.metrics.recordAuthorize(ctx, "domain_not_allowed", start)
		logger.InfoContext(ctx, "authorization rejected: domain not allowed")
		return nil, ErrDomainNotAllowed
	}

	entry, err := s.store.GetAllowlistEntry(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.recordAuthorize(ctx, "not_allowlisted", start)
			logger.InfoContext(ctx, "authorization rejected: email not allowlisted")
			return nil, ErrNotAllowlisted
		}
		s.metrics.recordAuthorize(ctx, "store_error", start)
		return nil, s.storeError(ctx, "get allowlist entry", err)
	}
	if entry.Status != StatusActive {
		s.metrics.recordAuthorize(ctx, "not_allowlisted", start)
		logger.InfoContext(ctx, "authorization rejected: allowlist entry revoked")
		return nil, ErrNotAllowlisted
	}

	var decision *Decision
	now := s.now().UTC()
	err = s.store.UpdateBinding(ctx, email, func(current *LicenseBinding) (*LicenseBinding, error) {
		// A revoked binding is never resurrected: once the email is
		// allowlisted again, a fresh binding replaces the revoked row.
		if current == nil || current.Status == StatusRevoked {
			lastUsed := now
			decision = &Decision{Authorized: true, Reason: "new binding", NewBinding: true}
			return &LicenseBinding{
				Email:        email,
				MachineID:    machineID,
				ComputerName: computerName,
				Status:       StatusActive,
				AuthorizedAt: now,
				LastUsed:     &lastUsed,
			}, nil
		}
		if current.MachineID == machineID {
			updated := *current
			lastUsed := now
			updated.LastUsed = &lastUsed
			decision = &Decision{Authorized: true, Reason: "renewed"}
			return &updated, nil
		}
		return nil, &MachineConflictError{ComputerName: current.ComputerName}
	})
	if err != nil {
		if errors.Is(err, ErrMachineConflict) {
			s.metrics.recordAuthorize(ctx, "machine_conflict", start)
			logger.InfoContext(ctx, "authorization rejected: machine conflict")
			return nil, err
		}
		s.metrics.recordAuthorize(ctx, "store_error", start)
		return nil, s.storeError(ctx, "update binding", err)
	}

	outcome := "renewed"
	if decision.NewBinding {
		outcome = "new_binding"
	}
	s.metrics.recordAuthorize(ctx, outcome, start)
	logger.InfoContext(ctx, "authorization granted", slog.String("reason", decision.Reason))

	return decision, nil
}

// storeError classifies and logs a store failure. Timeouts and
// cancellations surface as transient; everything else as unexpected.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	transient := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.logger.ErrorContext(ctx, "authorization store error",
		slog.String("op", op),
		slog.Bool("transient", transient),
		slog.String("error", err.Error()),
	)
	return &StoreError{Op: op, Transient: transient, Err: err}
}
