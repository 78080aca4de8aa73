package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"ai-sentinel/internal/platform/errors"
)

// Migration is one versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(tx *gorm.DB) error
}

// SchemaMigration marks an applied migration.
type SchemaMigration struct {
	Version   string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// Migrator applies migrations in the order they are given.
type Migrator struct {
	db    *gorm.DB
	steps []Migration
}

func NewMigrator(db *gorm.DB, steps ...Migration) *Migrator {
	return &Migrator{db: db, steps: steps}
}

// Apply runs every pending step. Each step and its marker row share one
// transaction, so a failed step leaves no marker behind.
func (m *Migrator) Apply() error {
	if err := m.db.AutoMigrate(&SchemaMigration{}); err != nil {
		return errors.Wrap(errors.KindStorage, "migration.prepare", "failed to create schema_migrations", err)
	}

	applied, err := AppliedVersions(m.db)
	if err != nil {
		return err
	}
	done := make(map[string]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}

	for _, step := range m.steps {
		if _, ok := done[step.Version()]; ok {
			continue
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   step.Version(),
				Name:      step.Description(),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return errors.Wrap(errors.KindStorage, "migration.apply", fmt.Sprintf("migration %s failed", step.Version()), err)
		}
	}
	return nil
}

// AppliedVersions lists applied migration versions in ascending order.
func AppliedVersions(db *gorm.DB) ([]string, error) {
	var versions []string
	if err := db.Model(&SchemaMigration{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.applied", "failed to read schema_migrations", err)
	}
	return versions, nil
}
