package testutil

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/xxxsen/chewie/internal/db"
)

// TestDim is the vector width of the tables created for integration tests.
const TestDim = 8

// OpenTestDB connects to the postgres named by TEST_DB_HOST, applies the
// migrations and empties every table. Tests are skipped without it.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port := 5432
	if v := os.Getenv("TEST_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "chewie"),
		Password: envOr("TEST_DB_PASSWORD", "chewie_pass"),
		DBName:   envOr("TEST_DB_NAME", "chewie_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(ctx, conn, TestDim); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "TRUNCATE query_cache, documents, embedding_cache"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// Vec returns a TestDim wide vector with v[i] set to 1 for every i in hot.
func Vec(hot ...int) []float32 {
	out := make([]float32, TestDim)
	for _, i := range hot {
		out[i] = 1
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
