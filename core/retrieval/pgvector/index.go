// Package pgvector stores knowledge snippets in PostgreSQL and ranks them by
// cosine distance with the pgvector extension.
package pgvector

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/koscakluka/ema-phone/core/retrieval"
	pgv "github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const scopeName = "github.com/koscakluka/ema-phone/core/retrieval/pgvector"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

//go:embed migrations/*.sql
var migrations embed.FS

// Vectors are sent in their text form and cast in SQL, so the pool needs no
// per-connection type registration and works before the extension exists.
const querySQL = `
SELECT content, 1 - (embedding <=> $1::vector) AS score
FROM knowledge_snippets
ORDER BY embedding <=> $1::vector
LIMIT $2`

const insertSQL = `
INSERT INTO knowledge_snippets (id, content, source, embedding)
VALUES ($1, $2, $3, $4::vector)`

type Index struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool for databaseURL. Close the index to
// release it.
func Connect(ctx context.Context, databaseURL string) (*Index, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Index{pool: pool}, nil
}

func NewIndex(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

func (i *Index) Close() {
	i.pool.Close()
}

// Migrate applies every pending schema migration.
func (i *Index) Migrate(ctx context.Context) error {
	migrationsFS, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(i.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, result := range results {
		logger.InfoContext(ctx, "applied migration",
			"version", result.Source.Version,
			"duration", result.Duration)
	}
	return nil
}

func (i *Index) Query(ctx context.Context, vector []float32, topK int) ([]retrieval.Match, error) {
	ctx, span := tracer.Start(ctx, "query index")
	defer span.End()

	rows, err := i.pool.Query(ctx, querySQL, pgv.NewVector(vector), topK)
	if err != nil {
		err = fmt.Errorf("failed to query knowledge snippets: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var matches []retrieval.Match
	for rows.Next() {
		var match retrieval.Match
		if err := rows.Scan(&match.Text, &match.Score); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge snippet: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("failed to read knowledge snippets: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))
	return matches, nil
}

// Insert stores one snippet and returns its ID.
func (i *Index) Insert(ctx context.Context, content, source string, vector []float32) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := i.pool.Exec(ctx, insertSQL, id, content, source, pgv.NewVector(vector)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert knowledge snippet: %w", err)
	}
	return id, nil
}
