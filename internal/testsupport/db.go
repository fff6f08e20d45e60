package testsupport

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"todolist/internal/repository"
)

// OpenDB opens a migrated SQLite database in a temp directory and closes it
// when the test ends.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "todolist.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
