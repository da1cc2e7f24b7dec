package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/models"
)

// ProgressRepository defines the per-user progress reads used by the
// aggregated dashboard view. Progress rows are written by the progress-update
// collaborator; this service only reads them.
type ProgressRepository interface {
	// Method MapByUser retrieves all progress rows of one user keyed by
	// lesson ID.
	MapByUser(ctx context.Context, userID string) (map[string]models.UserProgress, error)
}

// progressService merges per-user lesson progress across the purchase
// pathways into one consistent dashboard view
type progressService struct {
	catalog   CatalogRepository
	purchases PurchaseRepository
	progress  ProgressRepository
	logger    *zap.Logger
}

// NewProgressService creates a new progress service
func NewProgressService(catalog CatalogRepository, purchases PurchaseRepository, progress ProgressRepository, logger *zap.Logger) *progressService {
	return &progressService{
		catalog:   catalog,
		purchases: purchases,
		progress:  progress,
		logger:    logger,
	}
}

// BuildProgressView builds the merged per-lesson progress view for one user.
//
// Privileged viewers get one 0% entry per published lesson of every published
// course: they have no personal progress, the view exists so the dashboard
// surface stays uniform. Ordinary users get two passes over their entitlement
// sources: first every lesson reachable via a full-course purchase in
// canonical course order, then every lesson from single-lesson purchases. A
// lesson inserted by the first pass is never overwritten by the second;
// full-course context carries the authoritative course labeling.
func (s *progressService) BuildProgressView(ctx context.Context, userID string, role models.Role) ([]models.LessonProgressItem, error) {
	if role.IsPrivileged() {
		lessons, err := s.catalog.ListAllPublishedLessons(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list published lessons: %w", err)
		}

		view := make([]models.LessonProgressItem, 0, len(lessons))
		for _, lesson := range lessons {
			view = append(view, models.LessonProgressItem{
				LessonID: lesson.ID,
				Title:    lesson.Title,
				CourseID: lesson.CourseID,
			})
		}
		return view, nil
	}

	progressByLesson, err := s.progress.MapByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user progress: %w", err)
	}

	view := make([]models.LessonProgressItem, 0)
	seen := make(map[string]struct{})

	// Pass 1: lessons reachable through full-course purchases, in
	// course -> chapter -> lesson order
	courseIDs, err := s.purchases.ListPurchasedCourseIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased courses: %w", err)
	}
	for _, courseID := range courseIDs {
		lessons, err := s.catalog.ListPublishedLessonsByCourse(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to list lessons for course %s: %w", courseID, err)
		}
		for _, lesson := range lessons {
			if _, ok := seen[lesson.ID]; ok {
				continue
			}
			seen[lesson.ID] = struct{}{}
			view = append(view, s.progressItem(lesson, progressByLesson))
		}
	}

	// Pass 2: lessons from single-lesson purchases. First-seen wins: a
	// lesson already added by pass 1 keeps its full-course entry.
	purchasedLessons, err := s.purchases.ListPurchasedLessons(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased lessons: %w", err)
	}
	for _, lesson := range purchasedLessons {
		if _, ok := seen[lesson.ID]; ok {
			continue
		}
		seen[lesson.ID] = struct{}{}
		view = append(view, s.progressItem(lesson, progressByLesson))
	}

	return view, nil
}

// progressItem builds one view entry: 100 when the lesson is completed,
// otherwise the recorded percent, otherwise 0
func (s *progressService) progressItem(lesson models.Lesson, progressByLesson map[string]models.UserProgress) models.LessonProgressItem {
	item := models.LessonProgressItem{
		LessonID: lesson.ID,
		Title:    lesson.Title,
		CourseID: lesson.CourseID,
	}

	if p, ok := progressByLesson[lesson.ID]; ok {
		if p.IsCompleted {
			item.ProgressPercent = 100
		} else {
			item.ProgressPercent = p.ProgressPercent
		}
	}

	return item
}
