package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"kslicense/internal/authz"
)

// Error codes reported to API clients.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeDomainNotAllowed   = "DOMAIN_NOT_ALLOWED"
	ErrCodeNotAllowlisted     = "NOT_ALLOWLISTED"
	ErrCodeMachineConflict    = "MACHINE_CONFLICT"
	ErrCodeInvalidDomain      = "INVALID_DOMAIN"
	ErrCodeAlreadyAllowlisted = "ALREADY_ALLOWLISTED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrResponse is the JSON error body. It implements render.Renderer.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	AppCode        string `json:"code,omitempty"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements the render.Renderer interface.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// NewErrResponse creates a custom error response.
func NewErrResponse(status int, code, message string) *ErrResponse {
	return &ErrResponse{
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
		AppCode:        code,
		ErrorText:      message,
	}
}

// ErrInvalidRequest reports a malformed or unvalidatable request body.
func ErrInvalidRequest(message string) *ErrResponse {
	return NewErrResponse(http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

// errResponseFromAuthz maps engine errors onto HTTP responses.
// Validation rejections carry the engine's message verbatim so the
// caller can self-serve; store failures collapse to a generic body.
func errResponseFromAuthz(err error) *ErrResponse {
	switch {
	case errors.Is(err, authz.ErrInvalidRequest):
		return NewErrResponse(http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, authz.ErrDomainNotAllowed):
		return NewErrResponse(http.StatusBadRequest, ErrCodeDomainNotAllowed,
			"only organization email addresses may request a license")
	case errors.Is(err, authz.ErrNotAllowlisted):
		return NewErrResponse(http.StatusForbidden, ErrCodeNotAllowlisted,
			"this email is not authorized; contact the IT department")
	case errors.Is(err, authz.ErrMachineConflict):
		return NewErrResponse(http.StatusForbidden, ErrCodeMachineConflict, err.Error())
	case errors.Is(err, authz.ErrInvalidDomain):
		return NewErrResponse(http.StatusBadRequest, ErrCodeInvalidDomain,
			"email must belong to the organization domain")
	case errors.Is(err, authz.ErrAlreadyAllowlisted):
		return NewErrResponse(http.StatusConflict, ErrCodeAlreadyAllowlisted,
			"this email is already on the allowlist")
	case errors.Is(err, authz.ErrStoreUnavailable):
		return NewErrResponse(http.StatusServiceUnavailable, ErrCodeStoreUnavailable,
			"authorization store is temporarily unavailable, please retry")
	default:
		return NewErrResponse(http.StatusInternalServerError, ErrCodeInternal,
			"an unexpected error occurred, please try again later")
	}
}
