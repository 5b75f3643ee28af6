package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuslabs/campus/backend/internal/catalog"
	"github.com/campuslabs/campus/backend/internal/chat"
	"github.com/campuslabs/campus/backend/internal/students"
	"github.com/campuslabs/campus/backend/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&catalog.Subject{},
		&catalog.Course{},
		&catalog.Module{},
		&catalog.ContentItem{},
		&catalog.TextBody{},
		&catalog.FileBody{},
		&catalog.ImageBody{},
		&catalog.VideoBody{},
		&students.Enrollment{},
		&chat.Message{},
		&users.Identity{},
		&migrationRecord{},
	)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
