// Package integration exercises the MPI storage layer and the linkage flow
// against a real Postgres instance. Unit tests cover each package with
// in-memory repositories; these tests pin the SQL: the blocking query's
// candidate contract, transaction atomicity, constraint mapping, and the
// end-to-end link/review/attach loop.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpi/mpi/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "ping database: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "run migrations: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repo root
	return filepath.Join(dir, "..", "..", "migrations")
}

// resetDB empties every MPI table so each test starts from a blank index.
// Identities restart so tests may reason about insertion order.
func resetDB(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := globalDB.Pool.Exec(ctx,
		`TRUNCATE mpi_blocking_value, mpi_patient, mpi_person RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate mpi tables: %v", err)
	}
	if _, err := globalDB.Pool.Exec(ctx,
		`TRUNCATE mpi_algorithm RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate mpi_algorithm: %v", err)
	}
}

func strPtr(s string) *string { return &s }
