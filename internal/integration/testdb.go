//go:build integration

package integration

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/helpdesk/internal/adapters/postgres"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TestDB is a private schema inside the database named by TEST_DATABASE_URL.
// Each test gets its own schema, so tests can run in parallel against one
// server and leave nothing behind.
type TestDB struct {
	Pool   *pgxpool.Pool
	Schema string
}

// SetupTestDB creates the schema, applies the ticket DDL into it and drops it
// when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	ctx := context.Background()
	suffix, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 10)
	if err != nil {
		t.Fatalf("failed to generate schema name: %v", err)
	}
	schema := "helpdesk_it_" + suffix

	admin, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer admin.Close(ctx)

	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("failed to create schema %s: %v", schema, err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse TEST_DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test schema: %v", err)
	}

	db := &TestDB{Pool: pool, Schema: schema}
	t.Cleanup(func() { db.drop(dsn) })

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func (db *TestDB) drop(dsn string) {
	db.Pool.Close()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return
	}
	defer conn.Close(ctx)
	conn.Exec(ctx, "DROP SCHEMA "+pgx.Identifier{db.Schema}.Sanitize()+" CASCADE")
}
