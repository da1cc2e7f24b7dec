package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/models"
)

// catalogRepository implements published-content reads over courses,
// chapters, lessons and attachments
type catalogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *sql.DB, logger *zap.Logger) *catalogRepository {
	return &catalogRepository{
		db:     db,
		logger: logger,
	}
}

// Method GetPublishedLesson retrieves a lesson joined through its published
// chapter and course. Unpublished content is unreachable by design, whatever
// the caller's purchase state.
func (r *catalogRepository) GetPublishedLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	query := `
		SELECT l.id, l.chapter_id, ch.course_id, l.title, l.position, l.video_reference
		FROM lessons l
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE l.id = ? AND l.is_published = 1
		LIMIT 1
	`

	lesson := &models.Lesson{IsPublished: true}
	var videoReference sql.NullString
	err := r.db.QueryRowContext(ctx, query, lessonID).Scan(
		&lesson.ID,
		&lesson.ChapterID,
		&lesson.CourseID,
		&lesson.Title,
		&lesson.Position,
		&videoReference,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to query lesson", zap.Error(err), zap.String("lesson_id", lessonID))
		return nil, fmt.Errorf("failed to get lesson by id: %w", err)
	}

	lesson.VideoReference = videoReference.String
	return lesson, nil
}

// Method GetAttachment retrieves an attachment reachable only through a
// published lesson, chapter and course.
func (r *catalogRepository) GetAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error) {
	query := `
		SELECT a.id, a.lesson_id, a.name, a.storage_reference
		FROM attachments a
		INNER JOIN lessons l ON l.id = a.lesson_id AND l.is_published = 1
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE a.id = ?
		LIMIT 1
	`

	attachment := &models.Attachment{}
	var storageReference sql.NullString
	err := r.db.QueryRowContext(ctx, query, attachmentID).Scan(
		&attachment.ID,
		&attachment.LessonID,
		&attachment.Name,
		&storageReference,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to query attachment", zap.Error(err), zap.String("attachment_id", attachmentID))
		return nil, fmt.Errorf("failed to get attachment by id: %w", err)
	}

	attachment.StorageReference = storageReference.String
	return attachment, nil
}

// Method GetFirstLessonID retrieves the first lesson of the course's
// canonical ordering: chapters by position ascending, lessons within each
// chapter by position ascending, published rows only. Returns "" when the
// course has no published lessons.
//
// Recomputed on every call, never cached: publish state and positions change
// under content edits and the free-preview carve-out must follow them.
func (r *catalogRepository) GetFirstLessonID(ctx context.Context, courseID string) (string, error) {
	query := `
		SELECT l.id
		FROM lessons l
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE ch.course_id = ? AND l.is_published = 1
		ORDER BY ch.position ASC, l.position ASC
		LIMIT 1
	`

	var lessonID string
	err := r.db.QueryRowContext(ctx, query, courseID).Scan(&lessonID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.logger.Error("failed to query first lesson", zap.Error(err), zap.String("course_id", courseID))
		return "", fmt.Errorf("failed to get first lesson: %w", err)
	}

	return lessonID, nil
}

// Method ListPublishedLessonsByCourse retrieves the published lessons of one
// course in canonical order.
func (r *catalogRepository) ListPublishedLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	query := `
		SELECT l.id, l.chapter_id, ch.course_id, l.title, l.position, l.video_reference
		FROM lessons l
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE ch.course_id = ? AND l.is_published = 1
		ORDER BY ch.position ASC, l.position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		r.logger.Error("failed to query course lessons", zap.Error(err), zap.String("course_id", courseID))
		return nil, fmt.Errorf("failed to list course lessons: %w", err)
	}
	defer rows.Close()

	return scanLessons(rows)
}

// Method ListAllPublishedLessons retrieves every published lesson of every
// published course in canonical order.
func (r *catalogRepository) ListAllPublishedLessons(ctx context.Context) ([]models.Lesson, error) {
	query := `
		SELECT l.id, l.chapter_id, ch.course_id, l.title, l.position, l.video_reference
		FROM lessons l
		INNER JOIN chapters ch ON ch.id = l.chapter_id AND ch.is_published = 1
		INNER JOIN courses c ON c.id = ch.course_id AND c.is_published = 1
		WHERE l.is_published = 1
		ORDER BY c.id ASC, ch.position ASC, l.position ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to query published lessons", zap.Error(err))
		return nil, fmt.Errorf("failed to list published lessons: %w", err)
	}
	defer rows.Close()

	return scanLessons(rows)
}

// Method ListAttachmentsByLesson retrieves the attachments of one lesson.
func (r *catalogRepository) ListAttachmentsByLesson(ctx context.Context, lessonID string) ([]models.Attachment, error) {
	query := `
		SELECT id, lesson_id, name, storage_reference
		FROM attachments
		WHERE lesson_id = ?
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, lessonID)
	if err != nil {
		r.logger.Error("failed to query attachments", zap.Error(err), zap.String("lesson_id", lessonID))
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]models.Attachment, 0)
	for rows.Next() {
		var attachment models.Attachment
		var storageReference sql.NullString
		if err := rows.Scan(&attachment.ID, &attachment.LessonID, &attachment.Name, &storageReference); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachment.StorageReference = storageReference.String
		attachments = append(attachments, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}

	return attachments, nil
}

// scanLessons reads lesson rows in the shared column order
func scanLessons(rows *sql.Rows) ([]models.Lesson, error) {
	lessons := make([]models.Lesson, 0)
	for rows.Next() {
		lesson := models.Lesson{IsPublished: true}
		var videoReference sql.NullString
		if err := rows.Scan(
			&lesson.ID,
			&lesson.ChapterID,
			&lesson.CourseID,
			&lesson.Title,
			&lesson.Position,
			&videoReference,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lesson.VideoReference = videoReference.String
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lessons: %w", err)
	}

	return lessons, nil
}
