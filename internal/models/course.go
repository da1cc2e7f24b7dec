package models

// Course represents a course owning an ordered sequence of chapters
type Course struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsPublished bool   `json:"isPublished"`
}

// Chapter represents a chapter within a course, ordered by Position
type Chapter struct {
	ID          string `json:"id"`
	CourseID    string `json:"courseId"`
	Title       string `json:"title"`
	Position    int    `json:"position"`
	IsPublished bool   `json:"isPublished"`
}

// Lesson represents a lesson within a chapter, ordered by Position.
// VideoReference is an opaque stored string: a canonical playback ID, a full
// provider URL, or a legacy placeholder.
type Lesson struct {
	ID             string `json:"id"`
	ChapterID      string `json:"chapterId"`
	CourseID       string `json:"courseId"`
	Title          string `json:"title"`
	Position       int    `json:"position"`
	IsPublished    bool   `json:"isPublished"`
	VideoReference string `json:"-"`
}

// Attachment represents a downloadable file attached to a lesson.
// StorageReference is an opaque stored string: a canonical storage object
// path, a legacy full URL, or a previously-issued signed URL string.
type Attachment struct {
	ID               string `json:"id"`
	LessonID         string `json:"lessonId"`
	Name             string `json:"name"`
	StorageReference string `json:"-"`
}
