package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
)

func openLegacyDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&profiles.Profile{}, &links.Link{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestApplyMigrationsStripsLegacyPrefixes(testContext *testing.T) {
	database := openLegacyDatabase(testContext)

	legacyProfiles := []profiles.Profile{
		{ID: "user_abc12XYZ", Username: "ada"},
		{ID: "user_taken", Username: "legacy duplicate"},
		{ID: "taken", Username: "current"},
		{ID: "plain", Username: "untouched"},
	}
	if err := database.Create(&legacyProfiles).Error; err != nil {
		testContext.Fatalf("failed to insert profiles: %v", err)
	}
	legacyLink := links.Link{
		ID:        "link-1",
		UserID:    "user_abc12XYZ",
		URL:       "https://go.dev",
		Title:     "Go",
		MediaType: links.MediaTypeWebsite,
		CreatedAt: time.Now().UTC(),
	}
	if err := database.Create(&legacyLink).Error; err != nil {
		testContext.Fatalf("failed to insert link: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var ids []string
	if err := database.Model(&profiles.Profile{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		testContext.Fatalf("failed to list profile ids: %v", err)
	}
	expected := []string{"abc12XYZ", "plain", "taken", "user_taken"}
	if fmt.Sprint(ids) != fmt.Sprint(expected) {
		testContext.Fatalf("unexpected profile ids %v", ids)
	}

	var stored links.Link
	if err := database.Where("id = ?", legacyLink.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload link: %v", err)
	}
	if stored.UserID != "abc12XYZ" {
		testContext.Fatalf("expected link owner prefix to be stripped, got %s", stored.UserID)
	}
	if stored.Tags == nil || len(stored.Tags) != 0 {
		testContext.Fatalf("expected null tags to become an empty array, got %#v", stored.Tags)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationStripProfileIDPrefix).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database := openLegacyDatabase(testContext)

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if err := database.Create(&profiles.Profile{ID: "user_late", Username: "late"}).Error; err != nil {
		testContext.Fatalf("failed to insert profile: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}

	var count int64
	if err := database.Model(&profiles.Profile{}).Where("id = ?", "user_late").Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count profiles: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected recorded migration to be skipped")
	}

	var records int64
	if err := database.Model(&migrationRecord{}).Count(&records).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if records != 3 {
		testContext.Fatalf("expected three migration records, got %d", records)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}, zap.NewNop()); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
}

func TestOpenSQLiteMigratesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "linkshelf.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"profiles", "links", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}
