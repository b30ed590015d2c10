package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

const (
	migrationStripProfileIDPrefix = "2025-01-20_strip_profile_id_prefix"
	migrationStripLinkOwnerPrefix = "2025-01-20_strip_link_owner_prefix"
	migrationFillEmptyJSONArrays  = "2025-02-04_fill_empty_json_arrays"
)

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
		{name: migrationStripProfileIDPrefix, apply: stripProfileIDPrefix},
		{name: migrationStripLinkOwnerPrefix, apply: stripLinkOwnerPrefix},
		{name: migrationFillEmptyJSONArrays, apply: fillEmptyJSONArrays},
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

// prefixPattern matches values starting with the literal identity prefix; "_"
// is a LIKE wildcard and must be escaped.
const prefixPattern = "user!_%"

var prefixOffset = len(profiles.ExternalIDPrefix) + 1

// Rows whose stripped id is already taken are left alone.
func stripProfileIDPrefix(db *gorm.DB) error {
	return db.Exec(
		`UPDATE profiles SET id = substr(id, ?)
		WHERE id LIKE ? ESCAPE '!'
		AND NOT EXISTS (SELECT 1 FROM profiles AS existing WHERE existing.id = substr(profiles.id, ?))`,
		prefixOffset, prefixPattern, prefixOffset,
	).Error
}

func stripLinkOwnerPrefix(db *gorm.DB) error {
	return db.Exec(
		`UPDATE links SET user_id = substr(user_id, ?) WHERE user_id LIKE ? ESCAPE '!'`,
		prefixOffset, prefixPattern,
	).Error
}

func fillEmptyJSONArrays(db *gorm.DB) error {
	statements := []string{
		`UPDATE links SET tags = '[]' WHERE tags IS NULL OR CAST(tags AS TEXT) = 'null'`,
		`UPDATE profiles SET socials = '[]' WHERE socials IS NULL OR CAST(socials AS TEXT) = 'null'`,
		`UPDATE profiles SET collections = '[]' WHERE collections IS NULL OR CAST(collections AS TEXT) = 'null'`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
