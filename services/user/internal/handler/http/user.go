package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intelliguard/intelliguard/pkg/httputil"
	"github.com/intelliguard/intelliguard/pkg/middleware"
	"github.com/intelliguard/intelliguard/pkg/pagination"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/service"
)

// UserHandler serves the /api/v1/users endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/users. Without ?status= only active accounts are
// listed.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := domain.ParseStatus(raw)
		if !ok {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{Error: &httputil.ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "unknown status: " + raw,
			}})
			return
		}
		status = &s
	}

	page, err := h.service.ListProfiles(r.Context(), status, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, middleware.UserIDFromContext(r.Context()))
}

// Get handles GET /api/v1/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.writeProfile(w, r, id.String())
}

func (h *UserHandler) writeProfile(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}
