package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(testContext *testing.T) *Service {
	testContext.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(testContext.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&Subject{}, &Course{}, &Module{}, &ContentItem{},
		&TextBody{}, &FileBody{}, &ImageBody{}, &VideoBody{},
	)
	if err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustSubject(testContext *testing.T, service *Service, slug string) Subject {
	testContext.Helper()
	subject, err := service.CreateSubject(context.Background(), SubjectInput{Title: "Subject " + slug, Slug: slug})
	if err != nil {
		testContext.Fatalf("unexpected subject error: %v", err)
	}
	return subject
}

func mustCourse(testContext *testing.T, service *Service, ownerID string, subjectID uint, slug string) Course {
	testContext.Helper()
	course, err := service.CreateCourse(context.Background(), ownerID, CourseInput{
		SubjectID: subjectID,
		Title:     "Course " + slug,
		Slug:      slug,
		Overview:  "overview",
	})
	if err != nil {
		testContext.Fatalf("unexpected course error: %v", err)
	}
	return course
}

func mustModule(testContext *testing.T, service *Service, ownerID string, courseID uint, title string) Module {
	testContext.Helper()
	module, err := service.AddModule(context.Background(), ownerID, courseID, ModuleInput{Title: title})
	if err != nil {
		testContext.Fatalf("unexpected module error: %v", err)
	}
	return module
}

func mustTextContent(testContext *testing.T, service *Service, ownerID string, moduleID uint, title string) ContentItem {
	testContext.Helper()
	item, err := service.AddContent(context.Background(), ownerID, moduleID, ContentInput{
		Kind:  ContentKindText,
		Title: title,
		Text:  "body of " + title,
	})
	if err != nil {
		testContext.Fatalf("unexpected content error: %v", err)
	}
	return item
}
