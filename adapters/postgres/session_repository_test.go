package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/adapters/repotest"
)

// TestSessionRepository_Integration requires a running PostgreSQL instance
// (skipped if POSTGRES_URL is not set)
func TestSessionRepository_Integration(t *testing.T) {
	databaseURL := os.Getenv("POSTGRES_URL")
	if databaseURL == "" {
		t.Skip("Skipping PostgreSQL integration test - POSTGRES_URL not set")
	}

	ctx := context.Background()
	repo, err := NewSessionRepository(ctx, databaseURL, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close(ctx)

	if _, err := repo.pool.Exec(ctx, `TRUNCATE sessions CASCADE`); err != nil {
		t.Fatalf("Failed to reset tables: %v", err)
	}

	repotest.Run(t, repo)
	t.Run("ByteExactTranscript", func(t *testing.T) {
		repotest.ByteExactTranscript(t, repo)
	})
}
