package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrStoreUnavailable indicates the underlying store failed a query or
	// update. Creations are aborted; reorders may be partially applied.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")
	// ErrNotFound indicates the entity does not exist or is not owned by the
	// requester.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidInput indicates a malformed creation request.
	ErrInvalidInput = errors.New("catalog: invalid input")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "catalog.service.new"
	opCreateSubject   = "catalog.create_subject"
	opCreateCourse    = "catalog.create_course"
	opListSubjects    = "catalog.list_subjects"
	opListCourses     = "catalog.list_courses"
	opAddModule       = "catalog.add_module"
	opListModules     = "catalog.list_modules"
	opAddContent      = "catalog.add_content"
	opListContents    = "catalog.list_contents"
	opRemoveContent   = "catalog.remove_content"
	opReorderModules  = "catalog.reorder_modules"
	opReorderContents = "catalog.reorder_contents"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func storeFailure(operation, reason string, cause error) error {
	return newServiceError(operation, reason, fmt.Errorf("%w: %v", ErrStoreUnavailable, cause))
}

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages subjects, courses, ordered modules and ordered content
// items, including position assignment and batch reordering.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	positions *positionAllocator
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:        cfg.Database,
		clock:     clock,
		logger:    logger,
		positions: newPositionAllocator(),
	}, nil
}

// SubjectInput describes a new subject.
type SubjectInput struct {
	Title string
	Slug  string
}

// CreateSubject stores a new catalog subject.
func (s *Service) CreateSubject(ctx context.Context, input SubjectInput) (Subject, error) {
	if input.Title == "" || input.Slug == "" {
		return Subject{}, newServiceError(opCreateSubject, "missing_fields", ErrInvalidInput)
	}
	subject := Subject{Title: input.Title, Slug: input.Slug}
	if err := s.db.WithContext(ctx).Create(&subject).Error; err != nil {
		return Subject{}, storeFailure(opCreateSubject, "insert_failed", err)
	}
	return subject, nil
}

// ListSubjects returns all subjects ordered by title.
func (s *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	var subjects []Subject
	if err := s.db.WithContext(ctx).Order("title").Find(&subjects).Error; err != nil {
		return nil, storeFailure(opListSubjects, "select_failed", err)
	}
	return subjects, nil
}

// CourseInput describes a new course.
type CourseInput struct {
	SubjectID uint
	Title     string
	Slug      string
	Overview  string
}

// CreateCourse stores a new course owned by the requester.
func (s *Service) CreateCourse(ctx context.Context, ownerID string, input CourseInput) (Course, error) {
	if ownerID == "" || input.SubjectID == 0 || input.Title == "" || input.Slug == "" {
		return Course{}, newServiceError(opCreateCourse, "missing_fields", ErrInvalidInput)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Subject{}).Where("id = ?", input.SubjectID).Count(&count).Error; err != nil {
		return Course{}, storeFailure(opCreateCourse, "subject_lookup_failed", err)
	}
	if count == 0 {
		return Course{}, newServiceError(opCreateCourse, "unknown_subject", ErrNotFound)
	}

	course := Course{
		OwnerID:   ownerID,
		SubjectID: input.SubjectID,
		Title:     input.Title,
		Slug:      input.Slug,
		Overview:  input.Overview,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		return Course{}, storeFailure(opCreateCourse, "insert_failed", err)
	}
	return course, nil
}

// ListCourses returns the public catalog view, newest first, optionally
// filtered by subject slug.
func (s *Service) ListCourses(ctx context.Context, subjectSlug string) ([]CourseSummary, error) {
	query := s.db.WithContext(ctx).Model(&Course{}).
		Select("courses.id, courses.subject_id, courses.title, courses.slug, courses.overview, courses.created_at, COUNT(modules.id) AS total_modules").
		Joins("LEFT JOIN modules ON modules.course_id = courses.id").
		Group("courses.id").
		Order("courses.created_at DESC")
	if subjectSlug != "" {
		query = query.
			Joins("JOIN subjects ON subjects.id = courses.subject_id").
			Where("subjects.slug = ?", subjectSlug)
	}

	var summaries []CourseSummary
	if err := query.Scan(&summaries).Error; err != nil {
		return nil, storeFailure(opListCourses, "select_failed", err)
	}
	return summaries, nil
}

// CourseOwner reports whether the course exists and who owns it.
func (s *Service) CourseOwner(ctx context.Context, courseID uint) (string, error) {
	var course Course
	err := s.db.WithContext(ctx).Select("id, owner_id").Where("id = ?", courseID).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return course.OwnerID, nil
}

// ModuleInput describes a new module. A nil Position requests automatic
// assignment; an explicit value is trusted as supplied.
type ModuleInput struct {
	Title       string
	Description string
	Position    *int
}

// AddModule appends a module to a course owned by the requester. When no
// explicit position is supplied the module takes the next position in the
// course scope; assignment is serialized per course so concurrent creations
// cannot observe the same maximum.
func (s *Service) AddModule(ctx context.Context, ownerID string, courseID uint, input ModuleInput) (Module, error) {
	if input.Title == "" {
		return Module{}, newServiceError(opAddModule, "missing_title", ErrInvalidInput)
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&Course{}).
		Where("id = ? AND owner_id = ?", courseID, ownerID).
		Count(&count).Error
	if err != nil {
		return Module{}, storeFailure(opAddModule, "course_lookup_failed", err)
	}
	if count == 0 {
		return Module{}, newServiceError(opAddModule, "course_not_owned", ErrNotFound)
	}

	module := Module{
		CourseID:    courseID,
		Title:       input.Title,
		Description: input.Description,
	}

	if input.Position != nil {
		module.Position = *input.Position
		if err := s.db.WithContext(ctx).Create(&module).Error; err != nil {
			return Module{}, storeFailure(opAddModule, "insert_failed", err)
		}
		return module, nil
	}

	scope := positionScope{table: Module{}.TableName(), column: "course_id", id: courseID}
	unlock := s.positions.lock(scope)
	defer unlock()

	position, err := nextPosition(s.db.WithContext(ctx), &Module{}, scope)
	if err != nil {
		return Module{}, storeFailure(opAddModule, "position_query_failed", err)
	}
	module.Position = position
	if err := s.db.WithContext(ctx).Create(&module).Error; err != nil {
		return Module{}, storeFailure(opAddModule, "insert_failed", err)
	}
	return module, nil
}

// ListModules returns the modules of a course in position order.
func (s *Service) ListModules(ctx context.Context, courseID uint) ([]Module, error) {
	var modules []Module
	err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position").
		Find(&modules).Error
	if err != nil {
		return nil, storeFailure(opListModules, "select_failed", err)
	}
	return modules, nil
}

// ContentInput describes a new content item. Exactly the payload field
// matching Kind is consulted; a nil Position requests automatic assignment.
type ContentInput struct {
	Kind     ContentKind
	Title    string
	Text     string
	Path     string
	URL      string
	Position *int
}

func (input ContentInput) body(ownerID string) (Body, error) {
	meta := BodyMeta{OwnerID: ownerID, Title: input.Title}
	switch input.Kind {
	case ContentKindText:
		if input.Text == "" {
			return nil, ErrInvalidInput
		}
		return &TextBody{BodyMeta: meta, Content: input.Text}, nil
	case ContentKindFile:
		if input.Path == "" {
			return nil, ErrInvalidInput
		}
		return &FileBody{BodyMeta: meta, Path: input.Path}, nil
	case ContentKindImage:
		if input.Path == "" {
			return nil, ErrInvalidInput
		}
		return &ImageBody{BodyMeta: meta, Path: input.Path}, nil
	case ContentKindVideo:
		if input.URL == "" {
			return nil, ErrInvalidInput
		}
		return &VideoBody{BodyMeta: meta, URL: input.URL}, nil
	default:
		return nil, ErrInvalidInput
	}
}

// AddContent creates a content body and its ordered wrapper in a module of a
// course owned by the requester. The body row is written first, then the
// wrapper pointing at it; deleting the wrapper later removes both.
func (s *Service) AddContent(ctx context.Context, ownerID string, moduleID uint, input ContentInput) (ContentItem, error) {
	if input.Title == "" || !input.Kind.Valid() {
		return ContentItem{}, newServiceError(opAddContent, "invalid_fields", ErrInvalidInput)
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&Module{}).
		Where("id = ?", moduleID).
		Where("course_id IN (?)", s.db.Model(&Course{}).Select("id").Where("owner_id = ?", ownerID)).
		Count(&count).Error
	if err != nil {
		return ContentItem{}, storeFailure(opAddContent, "module_lookup_failed", err)
	}
	if count == 0 {
		return ContentItem{}, newServiceError(opAddContent, "module_not_owned", ErrNotFound)
	}

	body, err := input.body(ownerID)
	if err != nil {
		return ContentItem{}, newServiceError(opAddContent, "invalid_body", err)
	}
	if err := s.db.WithContext(ctx).Create(body).Error; err != nil {
		return ContentItem{}, storeFailure(opAddContent, "body_insert_failed", err)
	}

	item := ContentItem{
		ModuleID: moduleID,
		Kind:     input.Kind,
		BodyID:   bodyID(body),
	}

	if input.Position != nil {
		item.Position = *input.Position
		if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
			return ContentItem{}, storeFailure(opAddContent, "insert_failed", err)
		}
		return item, nil
	}

	scope := positionScope{table: ContentItem{}.TableName(), column: "module_id", id: moduleID}
	unlock := s.positions.lock(scope)
	defer unlock()

	position, err := nextPosition(s.db.WithContext(ctx), &ContentItem{}, scope)
	if err != nil {
		return ContentItem{}, storeFailure(opAddContent, "position_query_failed", err)
	}
	item.Position = position
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return ContentItem{}, storeFailure(opAddContent, "insert_failed", err)
	}
	return item, nil
}

func bodyID(body Body) uint {
	switch b := body.(type) {
	case *TextBody:
		return b.ID
	case *FileBody:
		return b.ID
	case *ImageBody:
		return b.ID
	case *VideoBody:
		return b.ID
	}
	return 0
}

// ListContents returns the rendered content of a module in position order.
func (s *Service) ListContents(ctx context.Context, moduleID uint) ([]ContentView, error) {
	var items []ContentItem
	err := s.db.WithContext(ctx).
		Where("module_id = ?", moduleID).
		Order("position").
		Find(&items).Error
	if err != nil {
		return nil, storeFailure(opListContents, "select_failed", err)
	}

	views := make([]ContentView, 0, len(items))
	for _, item := range items {
		body, err := s.loadBody(ctx, item.Kind, item.BodyID)
		if err != nil {
			return nil, storeFailure(opListContents, "body_select_failed", err)
		}
		views = append(views, ContentView{
			ID:       item.ID,
			ModuleID: item.ModuleID,
			Position: item.Position,
			Rendered: body.Render(),
		})
	}
	return views, nil
}

func (s *Service) loadBody(ctx context.Context, kind ContentKind, id uint) (Body, error) {
	db := s.db.WithContext(ctx)
	switch kind {
	case ContentKindText:
		var body TextBody
		if err := db.First(&body, id).Error; err != nil {
			return nil, err
		}
		return body, nil
	case ContentKindFile:
		var body FileBody
		if err := db.First(&body, id).Error; err != nil {
			return nil, err
		}
		return body, nil
	case ContentKindImage:
		var body ImageBody
		if err := db.First(&body, id).Error; err != nil {
			return nil, err
		}
		return body, nil
	case ContentKindVideo:
		var body VideoBody
		if err := db.First(&body, id).Error; err != nil {
			return nil, err
		}
		return body, nil
	}
	return nil, fmt.Errorf("unknown content kind %q", kind)
}

// RemoveContent deletes a content wrapper together with its body. Sibling
// positions are left untouched; gaps are permitted.
func (s *Service) RemoveContent(ctx context.Context, ownerID string, contentID uint) error {
	var item ContentItem
	err := s.db.WithContext(ctx).
		Where("id = ?", contentID).
		Where("module_id IN (?)", s.ownedModuleIDs(ownerID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opRemoveContent, "content_not_owned", ErrNotFound)
	}
	if err != nil {
		return storeFailure(opRemoveContent, "content_lookup_failed", err)
	}

	if err := s.deleteBody(ctx, item.Kind, item.BodyID); err != nil {
		return storeFailure(opRemoveContent, "body_delete_failed", err)
	}

	if err := s.db.WithContext(ctx).Delete(&ContentItem{}, item.ID).Error; err != nil {
		return storeFailure(opRemoveContent, "delete_failed", err)
	}
	return nil
}

func (s *Service) deleteBody(ctx context.Context, kind ContentKind, id uint) error {
	db := s.db.WithContext(ctx)
	switch kind {
	case ContentKindText:
		return db.Delete(&TextBody{}, id).Error
	case ContentKindFile:
		return db.Delete(&FileBody{}, id).Error
	case ContentKindImage:
		return db.Delete(&ImageBody{}, id).Error
	case ContentKindVideo:
		return db.Delete(&VideoBody{}, id).Error
	}
	return fmt.Errorf("unknown content kind %q", kind)
}

// ReorderModules applies a batch of (module id, new position) pairs. Each
// pair is one independent conditional update restricted to modules whose
// course is owned by the requester; mismatched ids are skipped silently.
// Application is best effort: a store failure aborts the remaining pairs
// without rolling back the applied ones. The applied count is returned.
func (s *Service) ReorderModules(ctx context.Context, ownerID string, updates map[uint]int) (int64, error) {
	var applied int64
	for moduleID, position := range updates {
		result := s.db.WithContext(ctx).Model(&Module{}).
			Where("id = ?", moduleID).
			Where("course_id IN (?)", s.db.Model(&Course{}).Select("id").Where("owner_id = ?", ownerID)).
			Update("position", position)
		if result.Error != nil {
			s.logger.Error("module reorder failed",
				zap.Uint("module_id", moduleID),
				zap.Error(result.Error))
			return applied, storeFailure(opReorderModules, "update_failed", result.Error)
		}
		applied += result.RowsAffected
	}
	return applied, nil
}

// ReorderContents applies a batch of (content id, new position) pairs with
// the same per-pair, best-effort semantics as ReorderModules.
func (s *Service) ReorderContents(ctx context.Context, ownerID string, updates map[uint]int) (int64, error) {
	var applied int64
	for contentID, position := range updates {
		result := s.db.WithContext(ctx).Model(&ContentItem{}).
			Where("id = ?", contentID).
			Where("module_id IN (?)", s.ownedModuleIDs(ownerID)).
			Update("position", position)
		if result.Error != nil {
			s.logger.Error("content reorder failed",
				zap.Uint("content_id", contentID),
				zap.Error(result.Error))
			return applied, storeFailure(opReorderContents, "update_failed", result.Error)
		}
		applied += result.RowsAffected
	}
	return applied, nil
}

func (s *Service) ownedModuleIDs(ownerID string) *gorm.DB {
	return s.db.Model(&Module{}).Select("id").
		Where("course_id IN (?)", s.db.Model(&Course{}).Select("id").Where("owner_id = ?", ownerID))
}
