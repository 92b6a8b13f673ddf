package pgvector

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"

	pgv "github.com/pgvector/pgvector-go"
)

func TestVectorParameterUsesTextForm(t *testing.T) {
	for _, tc := range []struct {
		in   []float32
		want string
	}{
		{[]float32{}, "[]"},
		{[]float32{1}, "[1]"},
		{[]float32{0.5, -2, 3.25}, "[0.5,-2,3.25]"},
	} {
		value, err := pgv.NewVector(tc.in).Value()
		if err != nil {
			t.Fatalf("failed to encode %v: %v", tc.in, err)
		}
		if got, ok := value.(string); !ok || got != tc.want {
			t.Fatalf("encoded %v as %#v, want %q", tc.in, value, tc.want)
		}
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("failed to read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one migration")
	}

	first, err := fs.ReadFile(migrations, "migrations/"+entries[0].Name())
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}
	for _, directive := range []string{"-- +goose Up", "-- +goose Down", "CREATE EXTENSION IF NOT EXISTS vector"} {
		if !strings.Contains(string(first), directive) {
			t.Fatalf("migration %s is missing %q", entries[0].Name(), directive)
		}
	}
}

// TestIndexRoundTrip needs a PostgreSQL server with the vector extension
// available, e.g. the pgvector/pgvector docker image.
func TestIndexRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("EMA_PHONE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("EMA_PHONE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	index, err := Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer index.Close()

	if err := index.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	near := make([]float32, 1536)
	near[0] = 1
	far := make([]float32, 1536)
	far[1] = 1

	if _, err := index.Insert(ctx, "near snippet", t.Name(), near); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if _, err := index.Insert(ctx, "far snippet", t.Name(), far); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	t.Cleanup(func() {
		_, _ = index.pool.Exec(context.Background(), "DELETE FROM knowledge_snippets WHERE source = $1", t.Name())
	})

	matches, err := index.Query(ctx, near, 1)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "near snippet" {
		t.Fatalf("expected nearest snippet first, got %+v", matches)
	}
}
