// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/brightsteps/progression/internal/infra"
	"github.com/brightsteps/progression/internal/repository"
	"gorm.io/gorm"
)

// OpenTestDB opens a file-backed SQLite database under t.TempDir and
// migrates the local tables. A file is used instead of :memory: so every
// pooled connection sees the same database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := infra.OpenLocalDB(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// OpenTestStore returns a migrated SQLiteStore.
func OpenTestStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	return repository.NewSQLiteStore(OpenTestDB(t))
}
