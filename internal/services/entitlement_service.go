package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/models"
)

// CatalogRepository defines the published-content reads the entitlement and
// progress logic depends on. Only published courses/chapters/lessons are ever
// returned; unpublished content is unreachable through these methods.
type CatalogRepository interface {
	// Method GetPublishedLesson retrieves a lesson by ID, joined through its
	// published chapter and published course.
	//
	// Returns models.ErrNotFound when the lesson does not exist or when the
	// lesson, its chapter, or its course is unpublished.
	GetPublishedLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
	// Method GetAttachment retrieves an attachment by ID together with its
	// owning lesson ID, reachable only through published content.
	//
	// Returns models.ErrNotFound when the attachment or any ancestor is
	// missing or unpublished.
	GetAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error)
	// Method GetFirstLessonID retrieves the ID of the first lesson in the
	// course's canonical ordering: chapters by position ascending, lessons
	// within each chapter by position ascending, published rows only.
	//
	// Returns "" without error when the course has no published lessons.
	GetFirstLessonID(ctx context.Context, courseID string) (string, error)
	// Method ListPublishedLessonsByCourse retrieves the published lessons of
	// one course in canonical order.
	ListPublishedLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	// Method ListAllPublishedLessons retrieves every published lesson of
	// every published course in canonical order.
	ListAllPublishedLessons(ctx context.Context) ([]models.Lesson, error)
	// Method ListAttachmentsByLesson retrieves the attachments of one lesson.
	ListAttachmentsByLesson(ctx context.Context, lessonID string) ([]models.Attachment, error)
}

// PurchaseRepository defines the purchase-record reads used for entitlement
// decisions. Purchases are written exclusively by the payment collaborator.
type PurchaseRepository interface {
	// Method HasCoursePurchase reports whether a full-course purchase exists
	// for the (userID, courseID) pair.
	HasCoursePurchase(ctx context.Context, userID, courseID string) (bool, error)
	// Method HasLessonPurchase reports whether a single-lesson purchase
	// exists for the (userID, lessonID) pair.
	HasLessonPurchase(ctx context.Context, userID, lessonID string) (bool, error)
	// Method ListPurchasedCourseIDs retrieves the IDs of all courses the user
	// holds a full-course purchase for, oldest purchase first.
	ListPurchasedCourseIDs(ctx context.Context, userID string) ([]string, error)
	// Method ListPurchasedLessons retrieves the published lessons the user
	// holds single-lesson purchases for, oldest purchase first.
	ListPurchasedLessons(ctx context.Context, userID string) ([]models.Lesson, error)
}

// entitlementService decides whether a user may access a lesson or attachment.
// It is a pure read-and-decide component: no method writes anything, and the
// free-preview lesson is recomputed from position fields on every call since
// publish state and ordering can change between requests.
type entitlementService struct {
	catalog   CatalogRepository
	purchases PurchaseRepository
	logger    *zap.Logger
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(catalog CatalogRepository, purchases PurchaseRepository, logger *zap.Logger) *entitlementService {
	return &entitlementService{
		catalog:   catalog,
		purchases: purchases,
		logger:    logger,
	}
}

// Resolve decides access for one user and one lesson. Precedence, first match
// wins: privileged role, full-course purchase, single-lesson purchase, free
// preview (first lesson of the course's canonical ordering), denied.
//
// The lesson must resolve to an existing, published lesson under a published
// course; otherwise the decision is Denied(NOT_FOUND), distinct from
// Denied(PURCHASE_REQUIRED). On a granted or denied decision the loaded
// lesson is returned alongside so callers do not re-read it; it is nil for
// NOT_FOUND.
func (s *entitlementService) Resolve(ctx context.Context, userID string, role models.Role, lessonID string) (models.Decision, *models.Lesson, error) {
	lesson, err := s.catalog.GetPublishedLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Deny(models.ReasonNotFound), nil, nil
		}
		return models.Decision{}, nil, fmt.Errorf("failed to load lesson: %w", err)
	}

	if role.IsPrivileged() {
		return models.Grant(models.ReasonPrivileged), lesson, nil
	}

	hasCourse, err := s.purchases.HasCoursePurchase(ctx, userID, lesson.CourseID)
	if err != nil {
		return models.Decision{}, nil, fmt.Errorf("failed to check course purchase: %w", err)
	}
	if hasCourse {
		return models.Grant(models.ReasonFullCourse), lesson, nil
	}

	hasLesson, err := s.purchases.HasLessonPurchase(ctx, userID, lessonID)
	if err != nil {
		return models.Decision{}, nil, fmt.Errorf("failed to check lesson purchase: %w", err)
	}
	if hasLesson {
		return models.Grant(models.ReasonSingleLesson), lesson, nil
	}

	firstLessonID, err := s.catalog.GetFirstLessonID(ctx, lesson.CourseID)
	if err != nil {
		return models.Decision{}, nil, fmt.Errorf("failed to determine free preview lesson: %w", err)
	}
	if firstLessonID != "" && firstLessonID == lessonID {
		return models.Grant(models.ReasonFreePreview), lesson, nil
	}

	return models.Deny(models.ReasonPurchaseRequired), lesson, nil
}

// ResolveAttachment decides access for an attachment by resolving its owning
// lesson: attachments inherit exactly the entitlement of their lesson, there
// is no attachment-level purchase.
func (s *entitlementService) ResolveAttachment(ctx context.Context, userID string, role models.Role, attachmentID string) (models.Decision, *models.Attachment, error) {
	attachment, err := s.catalog.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Deny(models.ReasonNotFound), nil, nil
		}
		return models.Decision{}, nil, fmt.Errorf("failed to load attachment: %w", err)
	}

	decision, _, err := s.Resolve(ctx, userID, role, attachment.LessonID)
	if err != nil {
		return models.Decision{}, nil, err
	}
	if !decision.Granted {
		return decision, nil, nil
	}

	return decision, attachment, nil
}
