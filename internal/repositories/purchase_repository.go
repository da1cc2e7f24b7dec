package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/models"
)

// purchaseRepository implements purchase-record reads. Purchases and lesson
// purchases are written exclusively by the payment-completion collaborator;
// this repository never inserts, updates or deletes.
type purchaseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *sql.DB, logger *zap.Logger) *purchaseRepository {
	return &purchaseRepository{
		db:     db,
		logger: logger,
	}
}

// Method HasCoursePurchase reports whether a full-course purchase exists for
// the (userID, courseID) pair.
func (r *purchaseRepository) HasCoursePurchase(ctx context.Context, userID, courseID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM purchases WHERE user_id = ? AND course_id = ?
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, courseID).Scan(&exists); err != nil {
		r.logger.Error("failed to check course purchase", zap.Error(err), zap.String("user_id", userID), zap.String("course_id", courseID))
		return false, fmt.Errorf("failed to check course purchase: %w", err)
	}

	return exists, nil
}

// Method HasLessonPurchase reports whether a single-lesson purchase exists
// for the (userID, lessonID) pair.
func (r *purchaseRepository) HasLessonPurchase(ctx context.Context, userID, lessonID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM lesson_purchases WHERE user_id = ? AND lesson_id = ?
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, lessonID).Scan(&exists); err != nil {
		r.logger.Error("failed to check lesson purchase", zap.Error(err), zap.String("user_id", userID), zap.String("lesson_id", lessonID))
		return false, fmt.Errorf("failed to check lesson purchase: %w", err)
	}

	return exists, nil
}

// Method ListPurchasedCourseIDs retrieves the IDs of all courses the user
// holds a full-course purchase for, oldest purchase first.
func (r *purchaseRepository) ListPurchasedCourseIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT course_id
		FROM purchases
		WHERE user_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to query purchases", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list purchased courses: %w", err)
	}
	defer rows.Close()

	courseIDs := make([]string, 0)
	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		courseIDs = append(courseIDs, courseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return courseIDs, nil
}

// Method ListPurchasedLessons retrieves the published lessons the user holds
// single-lesson purchases for, oldest purchase first.
func (r *purchaseRepository) ListPurchasedLessons(ctx context.Context, userID string) ([]models.Lesson, error) {
	query := `
		SELECT l.id, l.chapter_id, ch.course_id, l.title, l.position, l.video_reference
		FROM lesson_purchases lp
		INNER JOIN lessons l ON l.id = lp.lesson_id AND l.is_published = 1
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE lp.user_id = ?
		ORDER BY lp.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to query lesson purchases", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list purchased lessons: %w", err)
	}
	defer rows.Close()

	return scanLessons(rows)
}
