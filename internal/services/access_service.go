package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/media"
	"github.com/courseloom/backend/internal/models"
)

// EntitlementResolver defines the entitlement decisions the gateway sequences
type EntitlementResolver interface {
	// Method Resolve decides access for one user and one lesson and returns
	// the loaded lesson alongside a granted decision.
	Resolve(ctx context.Context, userID string, role models.Role, lessonID string) (models.Decision, *models.Lesson, error)
	// Method ResolveAttachment decides access for an attachment through its
	// owning lesson and returns the attachment alongside a granted decision.
	ResolveAttachment(ctx context.Context, userID string, role models.Role, attachmentID string) (models.Decision, *models.Attachment, error)
}

// PlaybackTokenSigner defines the playback token issuance contract
type PlaybackTokenSigner interface {
	// Method SignPlaybackTokens mints audience-scoped playback tokens for a
	// stored video reference. A non-positive ttl selects the default.
	SignPlaybackTokens(playbackRef string, ttl time.Duration) (*models.PlaybackTokens, error)
}

// StorageURLSigner defines the storage collaborator call that mints signed
// object URLs
type StorageURLSigner interface {
	// Method SignObjectURL mints a time-bounded URL for one object path.
	SignObjectURL(ctx context.Context, objectPath string, ttl time.Duration, download bool) (string, error)
	// Method Bucket returns the bucket the provider serves objects from.
	Bucket() string
}

// accessService is the thin facade over entitlement resolution, reference
// extraction, and credential minting. It holds no mutable state and is safe
// for concurrent use.
type accessService struct {
	entitlements EntitlementResolver
	tokens       PlaybackTokenSigner
	urls         StorageURLSigner
	catalog      CatalogRepository
	urlTTL       time.Duration
	logger       *zap.Logger
}

// NewAccessService creates a new access service
func NewAccessService(
	entitlements EntitlementResolver,
	tokens PlaybackTokenSigner,
	urls StorageURLSigner,
	catalog CatalogRepository,
	urlTTL time.Duration,
	logger *zap.Logger,
) *accessService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &accessService{
		entitlements: entitlements,
		tokens:       tokens,
		urls:         urls,
		catalog:      catalog,
		urlTTL:       urlTTL,
		logger:       logger,
	}
}

// CheckAccess returns the raw entitlement decision for one lesson. Used by
// the UI to badge previewable and locked lessons without minting credentials.
func (s *accessService) CheckAccess(ctx context.Context, userID string, role models.Role, lessonID string) (models.Decision, error) {
	decision, _, err := s.entitlements.Resolve(ctx, userID, role, lessonID)
	if err != nil {
		return models.Decision{}, err
	}
	return decision, nil
}

// VideoAccess checks entitlement for a lesson video and, when granted, mints
// the playback token set. Denied decisions surface as ErrNotFound or
// ErrPurchaseRequired before any signing work happens; an entitled request
// over a broken stored reference surfaces as ErrInvalidMediaReference so
// operators can tell access failures from content-configuration failures.
// A non-positive ttl selects the configured default.
func (s *accessService) VideoAccess(ctx context.Context, userID string, role models.Role, lessonID string, ttl time.Duration) (*models.PlaybackTokens, error) {
	decision, lesson, err := s.entitlements.Resolve(ctx, userID, role, lessonID)
	if err != nil {
		return nil, err
	}
	if !decision.Granted {
		return nil, decisionError(decision)
	}

	tokens, err := s.tokens.SignPlaybackTokens(lesson.VideoReference, ttl)
	if err != nil {
		return nil, fmt.Errorf("lesson %s video: %w", lessonID, err)
	}

	return tokens, nil
}

// AttachmentAccess checks entitlement for an attachment and, when granted,
// delegates signed-URL minting to the storage collaborator. The download flag
// switches the response disposition from inline to attachment.
func (s *accessService) AttachmentAccess(ctx context.Context, userID string, role models.Role, attachmentID string, download bool) (string, error) {
	decision, attachment, err := s.entitlements.ResolveAttachment(ctx, userID, role, attachmentID)
	if err != nil {
		return "", err
	}
	if !decision.Granted {
		return "", decisionError(decision)
	}

	objectPath, normalized := media.ExtractStoragePath(attachment.StorageReference, s.urls.Bucket())
	if !normalized && objectPath != "" {
		// Legacy reference kept working through the passthrough shim; logged
		// so the rows can be found and migrated
		s.logger.Warn("storage reference passthrough fallback used",
			zap.String("attachment_id", attachmentID),
		)
	}
	if objectPath == "" {
		return "", fmt.Errorf("attachment %s has no usable storage path: %w", attachmentID, models.ErrInvalidMediaReference)
	}

	// A stored reference that still carries a signing token is a stale
	// previously-issued URL; re-signing over it would mint a dead credential
	if media.IsStaleSignedPath(objectPath) {
		return "", fmt.Errorf("attachment %s reference is a stale signed URL: %w", attachmentID, models.ErrInvalidMediaReference)
	}

	// No retry here: URL issuance is cheap for the client to redo
	signedURL, err := s.urls.SignObjectURL(ctx, objectPath, s.urlTTL, download)
	if err != nil {
		return "", fmt.Errorf("attachment %s: %w", attachmentID, err)
	}

	return signedURL, nil
}

// LessonAttachments lists the attachments of a lesson, gated by the same
// entitlement decision as the lesson itself
func (s *accessService) LessonAttachments(ctx context.Context, userID string, role models.Role, lessonID string) ([]models.Attachment, error) {
	decision, _, err := s.entitlements.Resolve(ctx, userID, role, lessonID)
	if err != nil {
		return nil, err
	}
	if !decision.Granted {
		return nil, decisionError(decision)
	}

	return s.catalog.ListAttachmentsByLesson(ctx, lessonID)
}

// decisionError maps a denied decision onto the shared error taxonomy
func decisionError(decision models.Decision) error {
	if decision.Reason == models.ReasonNotFound {
		return models.ErrNotFound
	}
	return models.ErrPurchaseRequired
}
