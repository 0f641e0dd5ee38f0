// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

// NewSQLite returns a migrated in-memory database. The pool is pinned to a
// single connection because every sqlite ":memory:" connection is its own database.
func NewSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return gdb
}
