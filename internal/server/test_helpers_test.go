package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campuslabs/campus/backend/internal/auth"
	"github.com/campuslabs/campus/backend/internal/catalog"
	"github.com/campuslabs/campus/backend/internal/chat"
	"github.com/campuslabs/campus/backend/internal/database"
	"github.com/campuslabs/campus/backend/internal/students"
	"github.com/campuslabs/campus/backend/internal/users"
)

type testEnvironment struct {
	server   *httptest.Server
	tokens   *auth.TokenManager
	catalog  *catalog.Service
	chat     *chat.Service
	students *students.Service
	registry *chat.Registry
}

func newTestEnvironment(testContext *testing.T) *testEnvironment {
	testContext.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(testContext.Name(), "/", "_"))
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "campus-auth",
		TokenTTL:      time.Minute,
	})
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct users service: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct catalog service: %v", err)
	}
	studentsService, err := students.NewService(students.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct students service: %v", err)
	}
	registry := chat.NewRegistry()
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database: db,
		Registry: registry,
	})
	if err != nil {
		testContext.Fatalf("failed to construct chat service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:    tokenManager,
		CatalogService:  catalogService,
		ChatService:     chatService,
		StudentsService: studentsService,
		UsersService:    usersService,
		Registry:        registry,
		Logger:          zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	testContext.Cleanup(server.Close)

	return &testEnvironment{
		server:   server,
		tokens:   tokenManager,
		catalog:  catalogService,
		chat:     chatService,
		students: studentsService,
		registry: registry,
	}
}

func (env *testEnvironment) issueToken(testContext *testing.T, userID, displayName string) string {
	testContext.Helper()
	token, err := env.tokens.IssueToken(userID, displayName, userID+"@example.com")
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (env *testEnvironment) mustCourse(testContext *testing.T, ownerID, title string) catalog.Course {
	testContext.Helper()
	subject, err := env.catalog.CreateSubject(context.Background(), catalog.SubjectInput{
		Title: title + " Subject",
		Slug:  strings.ToLower(strings.ReplaceAll(title, " ", "-")) + "-subject",
	})
	if err != nil {
		testContext.Fatalf("failed to create subject: %v", err)
	}
	course, err := env.catalog.CreateCourse(context.Background(), ownerID, catalog.CourseInput{
		SubjectID: subject.ID,
		Title:     title,
		Slug:      strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Overview:  "overview",
	})
	if err != nil {
		testContext.Fatalf("failed to create course: %v", err)
	}
	return course
}

func (env *testEnvironment) mustModule(testContext *testing.T, ownerID string, courseID uint, title string) catalog.Module {
	testContext.Helper()
	module, err := env.catalog.AddModule(context.Background(), ownerID, courseID, catalog.ModuleInput{Title: title})
	if err != nil {
		testContext.Fatalf("failed to add module: %v", err)
	}
	return module
}
