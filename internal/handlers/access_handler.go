package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/middleware"
	"github.com/courseloom/backend/internal/models"
)

// AccessService defines the interface for entitlement and media access operations
type AccessService interface {
	// Method CheckAccess returns the entitlement decision for one lesson
	// without minting any credentials.
	//
	// If some error will occur during the check, the error will be returned
	// together with an empty decision.
	CheckAccess(ctx context.Context, userID string, role models.Role, lessonID string) (models.Decision, error)
	// Method VideoAccess checks entitlement for a lesson video and mints the
	// playback token set on a granted decision.
	//
	// "ttl" overrides the default token lifetime; a non-positive value
	// selects the default.
	VideoAccess(ctx context.Context, userID string, role models.Role, lessonID string, ttl time.Duration) (*models.PlaybackTokens, error)
	// Method AttachmentAccess checks entitlement for an attachment and mints
	// a signed URL on a granted decision.
	//
	// "download" switches the response disposition from inline to attachment.
	AttachmentAccess(ctx context.Context, userID string, role models.Role, attachmentID string, download bool) (string, error)
	// Method LessonAttachments lists the attachments of a lesson, gated by
	// the lesson's entitlement decision.
	LessonAttachments(ctx context.Context, userID string, role models.Role, lessonID string) ([]models.Attachment, error)
}

// AccessHandler handles entitlement and secure media access HTTP requests
type AccessHandler struct {
	BaseHandler
	service AccessService
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(svc AccessService, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		BaseHandler: BaseHandler{logger: logger},
		service:     svc,
	}
}

// RegisterRoutes registers all access handler routes
func (h *AccessHandler) RegisterRoutes(r chi.Router) {
	r.Route("/lessons/{lessonID}", func(r chi.Router) {
		r.Get("/access", h.GetAccess)
		r.Get("/playback", h.GetPlaybackTokens)
		r.Get("/attachments", h.GetLessonAttachments)
	})
	r.Get("/attachments/{attachmentID}/url", h.GetAttachmentURL)
}

// RegisterInternalRoutes registers service-to-service routes guarded by the
// API key instead of a user session
func (h *AccessHandler) RegisterInternalRoutes(r chi.Router) {
	r.Get("/access/lessons/{lessonID}", h.GetAccessForUser)
}

// GetAccess handles GET /lessons/{lessonID}/access
// @Summary Check lesson access
// @Description Returns the entitlement decision for the authenticated user and one lesson, including the grant reason (privileged, full course, single lesson, free preview)
// @Tags access
// @Produce json
// @Param lessonID path string true "Lesson ID"
// @Success 200 {object} models.Decision
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security ApiKeyAuth
// @Router /lessons/{lessonID}/access [get]
func (h *AccessHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lessonID := chi.URLParam(r, "lessonID")

	decision, err := h.service.CheckAccess(r.Context(), userID, role, lessonID)
	if err != nil {
		h.logger.Error("failed to check access", zap.Error(err), zap.String("lesson_id", lessonID))
		h.respondError(w, http.StatusInternalServerError, "failed to check access")
		return
	}

	h.respondJSON(w, http.StatusOK, decision)
}

// GetPlaybackTokens handles GET /lessons/{lessonID}/playback
// @Summary Issue playback tokens
// @Description Issues short-lived signed playback, thumbnail and storyboard tokens for the lesson video when the user is entitled to it
// @Tags access
// @Produce json
// @Param lessonID path string true "Lesson ID"
// @Success 200 {object} models.PlaybackTokens
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Purchase required"
// @Failure 404 {object} map[string]string "Lesson not found"
// @Failure 422 {object} map[string]string "Invalid media reference"
// @Failure 500 {object} map[string]string "Signing not configured"
// @Security ApiKeyAuth
// @Router /lessons/{lessonID}/playback [get]
func (h *AccessHandler) GetPlaybackTokens(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lessonID := chi.URLParam(r, "lessonID")

	tokens, err := h.service.VideoAccess(r.Context(), userID, role, lessonID, 0)
	if err != nil {
		h.respondAccessError(w, err, "lesson", lessonID)
		return
	}

	h.respondJSON(w, http.StatusOK, tokens)
}

// GetLessonAttachments handles GET /lessons/{lessonID}/attachments
// @Summary List lesson attachments
// @Description Lists the attachments of a lesson; gated by the same entitlement decision as the lesson itself
// @Tags access
// @Produce json
// @Param lessonID path string true "Lesson ID"
// @Success 200 {array} models.Attachment
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Purchase required"
// @Failure 404 {object} map[string]string "Lesson not found"
// @Security ApiKeyAuth
// @Router /lessons/{lessonID}/attachments [get]
func (h *AccessHandler) GetLessonAttachments(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lessonID := chi.URLParam(r, "lessonID")

	attachments, err := h.service.LessonAttachments(r.Context(), userID, role, lessonID)
	if err != nil {
		h.respondAccessError(w, err, "lesson", lessonID)
		return
	}

	h.respondJSON(w, http.StatusOK, attachments)
}

// GetAttachmentURL handles GET /attachments/{attachmentID}/url
// @Summary Issue a signed attachment URL
// @Description Issues a time-bounded signed URL for an attachment when the user is entitled to its lesson
// @Tags access
// @Produce json
// @Param attachmentID path string true "Attachment ID"
// @Param download query bool false "Request attachment disposition instead of inline"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Purchase required"
// @Failure 404 {object} map[string]string "Attachment not found"
// @Failure 422 {object} map[string]string "Invalid storage reference"
// @Failure 502 {object} map[string]string "Storage provider failure"
// @Security ApiKeyAuth
// @Router /attachments/{attachmentID}/url [get]
func (h *AccessHandler) GetAttachmentURL(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	attachmentID := chi.URLParam(r, "attachmentID")
	download := r.URL.Query().Get("download") == "true"

	signedURL, err := h.service.AttachmentAccess(r.Context(), userID, role, attachmentID, download)
	if err != nil {
		h.respondAccessError(w, err, "attachment", attachmentID)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"url": signedURL})
}

// GetAccessForUser handles GET /internal/access/lessons/{lessonID}
// @Summary Check lesson access on behalf of a user
// @Description Returns the entitlement decision for an explicit user; intended for trusted backend services holding the API key
// @Tags internal
// @Produce json
// @Param lessonID path string true "Lesson ID"
// @Param user_id query string true "User ID to check"
// @Param role query string false "User role, defaults to USER"
// @Success 200 {object} models.Decision
// @Failure 400 {object} map[string]string "Missing or invalid parameters"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security ApiKeyAuth
// @Router /internal/access/lessons/{lessonID} [get]
func (h *AccessHandler) GetAccessForUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	role := models.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = models.RoleUser
	}
	if !role.IsValid() {
		h.respondError(w, http.StatusBadRequest, "invalid role")
		return
	}

	lessonID := chi.URLParam(r, "lessonID")

	decision, err := h.service.CheckAccess(r.Context(), userID, role, lessonID)
	if err != nil {
		h.logger.Error("failed to check access", zap.Error(err), zap.String("lesson_id", lessonID))
		h.respondError(w, http.StatusInternalServerError, "failed to check access")
		return
	}

	h.respondJSON(w, http.StatusOK, decision)
}

// identity extracts the authenticated user from the request context
func (h *AccessHandler) identity(r *http.Request) (string, models.Role, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return "", "", false
	}
	role, ok := middleware.GetUserRole(r.Context())
	if !ok {
		return "", "", false
	}
	return userID, role, true
}

// respondAccessError maps the shared error taxonomy onto HTTP statuses.
// Denied outcomes carry a generic reason only; configuration faults are kept
// apart from entitlement denials so operators can tell them apart in logs.
func (h *AccessHandler) respondAccessError(w http.ResponseWriter, err error, kind, id string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.respondError(w, http.StatusNotFound, kind+" not found")
	case errors.Is(err, models.ErrPurchaseRequired):
		h.respondError(w, http.StatusForbidden, "purchase required")
	case errors.Is(err, models.ErrInvalidMediaReference):
		h.logger.Warn("media reference cannot be normalized", zap.Error(err), zap.String(kind+"_id", id))
		h.respondError(w, http.StatusUnprocessableEntity, "media reference is invalid")
	case errors.Is(err, models.ErrInvalidConfiguration):
		h.logger.Error("media signing misconfigured", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "media delivery is not configured")
	case errors.Is(err, models.ErrUpstreamFailure):
		h.logger.Error("upstream provider failure", zap.Error(err), zap.String(kind+"_id", id))
		h.respondError(w, http.StatusBadGateway, "media provider is unavailable")
	default:
		h.logger.Error("access request failed", zap.Error(err), zap.String(kind+"_id", id))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
