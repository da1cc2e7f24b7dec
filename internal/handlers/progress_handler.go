package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/middleware"
	"github.com/courseloom/backend/internal/models"
)

// ProgressService defines the interface for the aggregated progress view
type ProgressService interface {
	// Method BuildProgressView builds the merged per-lesson progress view
	// for one user across the full-course and single-lesson purchase
	// pathways.
	//
	// If some error will occur while building the view, the error will be
	// returned together with "nil" value.
	BuildProgressView(ctx context.Context, userID string, role models.Role) ([]models.LessonProgressItem, error)
}

// ProgressHandler handles progress dashboard HTTP requests
type ProgressHandler struct {
	BaseHandler
	service ProgressService
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(svc ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers all progress handler routes
func (h *ProgressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/progress", h.GetProgressView)
}

// GetProgressView handles GET /me/progress
// @Summary Get the aggregated progress view
// @Description Returns one entry per accessible lesson with the user's completion percent, merged across full-course and single-lesson purchases
// @Tags progress
// @Produce json
// @Success 200 {array} models.LessonProgressItem
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security ApiKeyAuth
// @Router /me/progress [get]
func (h *ProgressHandler) GetProgressView(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	role, ok := middleware.GetUserRole(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	view, err := h.service.BuildProgressView(r.Context(), userID, role)
	if err != nil {
		h.logger.Error("failed to build progress view", zap.Error(err), zap.String("user_id", userID))
		h.respondError(w, http.StatusInternalServerError, "failed to build progress view")
		return
	}

	h.respondJSON(w, http.StatusOK, view)
}
