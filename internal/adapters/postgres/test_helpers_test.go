package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

// setupMockContext carries the mock as the ambient transaction, so store
// statements and nested WithTransaction calls all go to it.
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey{}, mock)
}

// setupTestDB connects to TEST_DATABASE_URL and applies the schema. Tests using
// it are skipped when the variable is unset.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := Migrate(context.Background(), pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	cleanupTestData(t, pool)
	t.Cleanup(func() {
		cleanupTestData(t, pool)
		pool.Close()
	})
	return pool
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `DELETE FROM support_tickets WHERE user_id = 'u_integration'`); err != nil {
		t.Logf("cleanup failed: %v", err)
	}
}

type stubIDs struct {
	conversations int
	messages      int
}

func (s *stubIDs) GenerateConversationID() string {
	s.conversations++
	return fmt.Sprintf("hc_%d", s.conversations)
}

func (s *stubIDs) GenerateMessageID() string {
	s.messages++
	return fmt.Sprintf("hm_%d", s.messages)
}
