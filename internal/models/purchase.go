package models

import "time"

// Purchase represents a full-course entitlement: the (UserID, CourseID) pair
// is unique and its existence grants access to every published lesson and
// attachment under the course. Purchases are created exclusively by the
// payment-completion collaborator and are never revoked here.
type Purchase struct {
	UserID    string    `json:"userId"`
	CourseID  string    `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LessonPurchase represents a single-lesson entitlement: the (UserID,
// LessonID) pair is unique and grants access to that lesson only.
type LessonPurchase struct {
	UserID    string    `json:"userId"`
	LessonID  string    `json:"lessonId"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserProgress represents per-user playback progress for one lesson, keyed by
// the unique (UserID, LessonID) pair. Rows are written by the progress-update
// collaborator; this service only reads them.
type UserProgress struct {
	UserID           string `json:"userId"`
	LessonID         string `json:"lessonId"`
	IsCompleted      bool   `json:"isCompleted"`
	ProgressPercent  int    `json:"progressPercent"`
	MinutesRemaining int    `json:"minutesRemaining"`
}

// LessonProgressItem represents one entry of the merged per-user progress view
type LessonProgressItem struct {
	LessonID        string `json:"lessonId"`
	Title           string `json:"title"`
	CourseID        string `json:"courseId"`
	ProgressPercent int    `json:"progressPercent"`
}
