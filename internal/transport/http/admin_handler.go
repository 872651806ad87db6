package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// AdminHandler serves the trusted administrative surface: allowlist
// management, revocation, and the active-binding listing.
type AdminHandler struct {
	service AuthzService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(service AuthzService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "admin")),
	}
}

// AdminEmailRequest is the payload for allowlist and revoke calls.
type AdminEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// Bind implements render.Binder.
func (req *AdminEmailRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// AdminResponse is the body for admin mutations: a result message plus
// the refreshed active-binding list for display.
type AdminResponse struct {
	Message  string        `json:"message"`
	Bindings []bindingView `json:"bindings"`
}

// Routes returns a chi router for the admin endpoints.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/allowlist", h.AddToAllowlist)
	r.Post("/revoke", h.RevokeAccess)
	r.Get("/bindings", h.ListBindings)
	return r
}

// AddToAllowlist handles POST /api/admin/allowlist.
func (h *AdminHandler) AddToAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &AdminEmailRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err.Error()))
		return
	}

	entry, err := h.service.AddToAllowlist(ctx, req.Email)
	if err != nil {
		_ = render.Render(w, r, errResponseFromAuthz(err))
		return
	}

	h.respondWithBindings(w, r, "added "+entry.Email+" to the allowlist")
}

// RevokeAccess handles POST /api/admin/revoke.
func (h *AdminHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &AdminEmailRequest{}
	if err := render.Bind(r, req); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err.Error()))
		return
	}

	result, err := h.service.RevokeAccess(ctx, req.Email)
	if err != nil {
		_ = render.Render(w, r, errResponseFromAuthz(err))
		return
	}

	message := "revoked access for " + result.Email
	if !result.EntryRevoked && !result.BindingRevoked {
		message = "no active records for " + result.Email
	}
	h.respondWithBindings(w, r, message)
}

// ListBindings handles GET /api/admin/bindings.
func (h *AdminHandler) ListBindings(w http.ResponseWriter, r *http.Request) {
	h.respondWithBindings(w, r, "active bindings")
}

// respondWithBindings writes message plus the refreshed active-binding
// list, which every admin call returns for display.
func (h *AdminHandler) respondWithBindings(w http.ResponseWriter, r *http.Request, message string) {
	ctx := r.Context()

	bindings, err := h.service.ListActiveBindings(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list active bindings",
			slog.String("error", err.Error()),
		)
		_ = render.Render(w, r, errResponseFromAuthz(err))
		return
	}

	render.JSON(w, r, &AdminResponse{
		Message:  message,
		Bindings: toBindingViews(bindings),
	})
}
