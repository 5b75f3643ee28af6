package students

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/campuslabs/campus/backend/internal/catalog"
)

var (
	// ErrCourseNotFound indicates the course does not exist.
	ErrCourseNotFound = errors.New("students: course not found")
	// ErrStoreUnavailable indicates a failed enrollment query or write.
	ErrStoreUnavailable = errors.New("students: store unavailable")
)

// Enrollment links a student to a course, at most once per pair.
type Enrollment struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	CourseID   uint      `gorm:"column:course_id;not null;uniqueIndex:idx_enrollments_course_user,priority:1"`
	UserID     string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_enrollments_course_user,priority:2"`
	EnrolledAt time.Time `gorm:"column:enrolled_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Enrollment) TableName() string {
	return "enrollments"
}

// ServiceConfig describes the dependencies of the enrollment service.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service manages student enrollment in courses.
type Service struct {
	db *gorm.DB
}

// NewService constructs the enrollment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("students: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// Enroll adds the student to the course. Enrolling twice is a no-op.
func (s *Service) Enroll(ctx context.Context, courseID uint, userID string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&catalog.Course{}).Where("id = ?", courseID).Count(&count).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 0 {
		return ErrCourseNotFound
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&Enrollment{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&existing).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing > 0 {
		return nil
	}

	enrollment := Enrollment{CourseID: courseID, UserID: userID}
	if err := s.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsEnrolled reports whether the student is enrolled in the course.
func (s *Service) IsEnrolled(ctx context.Context, courseID uint, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Enrollment{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

// ListCourseIDs returns the ids of the courses the student is enrolled in,
// most recent enrollment first.
func (s *Service) ListCourseIDs(ctx context.Context, userID string) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&Enrollment{}).
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}
