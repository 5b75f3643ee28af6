package catalog

import (
	"time"
)

// Subject groups courses under a catalog heading.
type Subject struct {
	ID    uint   `gorm:"column:id;primaryKey"`
	Title string `gorm:"column:title;size:200;not null"`
	Slug  string `gorm:"column:slug;size:200;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Subject) TableName() string {
	return "subjects"
}

// Course is an instructor-owned course within a subject.
type Course struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index"`
	SubjectID uint      `gorm:"column:subject_id;not null;index"`
	Title     string    `gorm:"column:title;size:200;not null"`
	Slug      string    `gorm:"column:slug;size:200;not null;uniqueIndex"`
	Overview  string    `gorm:"column:overview;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName provides the explicit table binding for GORM.
func (Course) TableName() string {
	return "courses"
}

// Module is an ordered section of a course. Position is unique within the
// owning course, assigned on create and mutated only by explicit reorders;
// gaps left by deletions are never compacted.
type Module struct {
	ID          uint   `gorm:"column:id;primaryKey"`
	CourseID    uint   `gorm:"column:course_id;not null;index:idx_modules_course_position,priority:1"`
	Title       string `gorm:"column:title;size:200;not null"`
	Description string `gorm:"column:description;type:text;not null;default:''"`
	Position    int    `gorm:"column:position;not null;index:idx_modules_course_position,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Module) TableName() string {
	return "modules"
}

// ContentKind is the closed set of content body variants.
type ContentKind string

const (
	ContentKindText  ContentKind = "text"
	ContentKindFile  ContentKind = "file"
	ContentKindImage ContentKind = "image"
	ContentKindVideo ContentKind = "video"
)

// Valid reports whether the kind is one of the four supported variants.
func (k ContentKind) Valid() bool {
	switch k {
	case ContentKindText, ContentKindFile, ContentKindImage, ContentKindVideo:
		return true
	}
	return false
}

// ContentItem wraps one content body inside a module. Position is unique
// within the owning module, with the same lifecycle as Module.Position.
type ContentItem struct {
	ID       uint        `gorm:"column:id;primaryKey"`
	ModuleID uint        `gorm:"column:module_id;not null;index:idx_contents_module_position,priority:1"`
	Kind     ContentKind `gorm:"column:kind;size:16;not null"`
	BodyID   uint        `gorm:"column:body_id;not null"`
	Position int         `gorm:"column:position;not null;index:idx_contents_module_position,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ContentItem) TableName() string {
	return "content_items"
}

// RenderedContent is the uniform display representation of any content body.
type RenderedContent struct {
	Kind  ContentKind `json:"kind"`
	Title string      `json:"title"`
	Body  string      `json:"body"`
}

// Body is implemented by the four content body variants.
type Body interface {
	Kind() ContentKind
	Render() RenderedContent
}

// BodyMeta carries the fields shared by every content body variant.
type BodyMeta struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index"`
	Title     string    `gorm:"column:title;size:250;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TextBody holds inline text content.
type TextBody struct {
	BodyMeta
	Content string `gorm:"column:content;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TextBody) TableName() string {
	return "text_bodies"
}

// Kind identifies the variant.
func (TextBody) Kind() ContentKind { return ContentKindText }

// Render produces the display representation.
func (b TextBody) Render() RenderedContent {
	return RenderedContent{Kind: ContentKindText, Title: b.Title, Body: b.Content}
}

// FileBody references an uploaded file by storage path.
type FileBody struct {
	BodyMeta
	Path string `gorm:"column:path;size:512;not null"`
}

// TableName provides the explicit table binding for GORM.
func (FileBody) TableName() string {
	return "file_bodies"
}

// Kind identifies the variant.
func (FileBody) Kind() ContentKind { return ContentKindFile }

// Render produces the display representation.
func (b FileBody) Render() RenderedContent {
	return RenderedContent{Kind: ContentKindFile, Title: b.Title, Body: b.Path}
}

// ImageBody references an uploaded image by storage path.
type ImageBody struct {
	BodyMeta
	Path string `gorm:"column:path;size:512;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ImageBody) TableName() string {
	return "image_bodies"
}

// Kind identifies the variant.
func (ImageBody) Kind() ContentKind { return ContentKindImage }

// Render produces the display representation.
func (b ImageBody) Render() RenderedContent {
	return RenderedContent{Kind: ContentKindImage, Title: b.Title, Body: b.Path}
}

// VideoBody references an external video by URL.
type VideoBody struct {
	BodyMeta
	URL string `gorm:"column:url;size:512;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VideoBody) TableName() string {
	return "video_bodies"
}

// Kind identifies the variant.
func (VideoBody) Kind() ContentKind { return ContentKindVideo }

// Render produces the display representation.
func (b VideoBody) Render() RenderedContent {
	return RenderedContent{Kind: ContentKindVideo, Title: b.Title, Body: b.URL}
}

// CourseSummary is the public catalog view of a course.
type CourseSummary struct {
	ID           uint      `json:"id"`
	SubjectID    uint      `json:"subject_id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Overview     string    `json:"overview"`
	CreatedAt    time.Time `json:"created_at"`
	TotalModules int64     `json:"total_modules"`
}

// ContentView pairs a content wrapper with its rendered body.
type ContentView struct {
	ID       uint            `json:"id"`
	ModuleID uint            `json:"module_id"`
	Position int             `json:"position"`
	Rendered RenderedContent `json:"rendered"`
}
