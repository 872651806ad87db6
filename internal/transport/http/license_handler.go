package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"kslicense/internal/authz"
)

var validate = validator.New()

// LicenseHandler serves the public license request endpoint.
type LicenseHandler struct {
	service AuthzService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service AuthzService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// LicenseRequest is the POST /api/license payload. Required fields are
// enforced before the request reaches the engine.
type LicenseRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	MachineID    string `json:"machine_id" validate:"required,max=128"`
	ComputerName string `json:"computer_name" validate:"omitempty,max=128"`
}

// Bind implements render.Binder.
func (req *LicenseRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// LicenseResponse is the success body for POST /api/license.
type LicenseResponse struct {
	Authorized bool      `json:"authorized"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Routes returns a chi router for the public license endpoint.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RequestLicense)
	return r
}

// RequestLicense handles POST /api/license.
func (h *LicenseHandler) RequestLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &LicenseRequest{}
	if err := render.Bind(r, req); err != nil {
		h.logger.InfoContext(ctx, "license request rejected: invalid payload",
			slog.String("error", err.Error()),
		)
		_ = render.Render(w, r, ErrInvalidRequest(err.Error()))
		return
	}

	decision, err := h.service.Authorize(ctx, req.Email, req.MachineID, req.ComputerName)
	if err != nil {
		// Validation rejections are logged by the engine; only the HTTP
		// translation happens here.
		_ = render.Render(w, r, errResponseFromAuthz(err))
		return
	}

	message := "license validated"
	if decision.NewBinding {
		message = "license granted"
	}
	h.logger.InfoContext(ctx, "license request authorized",
		slog.String("reason", decision.Reason),
	)

	render.JSON(w, r, &LicenseResponse{
		Authorized: true,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}

// bindingView is the admin-facing projection of a binding. The machine
// fingerprint stays internal; LastUsed is omitted when never set.
type bindingView struct {
	Email        string     `json:"email"`
	ComputerName string     `json:"computer_name,omitempty"`
	AuthorizedAt time.Time  `json:"authorized_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
}

func toBindingViews(bindings []authz.LicenseBinding) []bindingView {
	out := make([]bindingView, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, bindingView{
			Email:        b.Email,
			ComputerName: b.ComputerName,
			AuthorizedAt: b.AuthorizedAt,
			LastUsed:     b.LastUsed,
		})
	}
	return out
}
