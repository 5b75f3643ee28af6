package database

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuslabs/campus/backend/internal/catalog"
)

const migrationNormalizeSubjectSlugs = "2026-08-12_normalize_subject_slugs"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeSubjectSlugs, apply: normalizeSubjectSlugs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Slugs were accepted with mixed case before routing became case sensitive.
func normalizeSubjectSlugs(db *gorm.DB) error {
	var subjects []catalog.Subject
	if err := db.Find(&subjects).Error; err != nil {
		return err
	}
	for _, subject := range subjects {
		lowered := strings.ToLower(subject.Slug)
		if lowered == subject.Slug {
			continue
		}
		err := db.Model(&catalog.Subject{}).
			Where("id = ?", subject.ID).
			Update("slug", lowered).Error
		if err != nil {
			return err
		}
	}
	return nil
}
