// Package repotest provides an in-memory state store for tests.
package repotest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"timebridge.service/internal/ports/repository"
)

// New returns a migrated repository backed by a private in-memory SQLite
// database. It is closed when the test ends.
func New(t testing.TB) *repository.SQLRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A shared-cache memory database lives as long as one connection holds it.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSQLRepository(db, repository.DialectSQLite)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return repo
}
