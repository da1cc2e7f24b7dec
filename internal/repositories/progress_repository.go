package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/models"
)

// progressRepository implements per-user progress reads. Progress rows are
// created and updated by the progress-update collaborator keyed by the unique
// (user_id, lesson_id) pair; this repository only reads them.
type progressRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *sql.DB, logger *zap.Logger) *progressRepository {
	return &progressRepository{
		db:     db,
		logger: logger,
	}
}

// Method MapByUser retrieves all progress rows of one user keyed by lesson ID.
func (r *progressRepository) MapByUser(ctx context.Context, userID string) (map[string]models.UserProgress, error) {
	query := `
		SELECT user_id, lesson_id, is_completed, progress_percent, minutes_remaining
		FROM user_progress
		WHERE user_id = ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to query user progress", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list user progress: %w", err)
	}
	defer rows.Close()

	progressByLesson := make(map[string]models.UserProgress)
	for rows.Next() {
		var progress models.UserProgress
		if err := rows.Scan(
			&progress.UserID,
			&progress.LessonID,
			&progress.IsCompleted,
			&progress.ProgressPercent,
			&progress.MinutesRemaining,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user progress: %w", err)
		}
		progressByLesson[progress.LessonID] = progress
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user progress: %w", err)
	}

	return progressByLesson, nil
}
