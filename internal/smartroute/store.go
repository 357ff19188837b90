package smartroute

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ToolVector is one row of the tool_embeddings table. Server/tool stand in
// for the generic (contentType, contentId) key: the only content this
// index ever embeds is a tool's description, since prompts/resources
// aren't smart-routed.
type ToolVector struct {
	Server      string
	Tool        string
	Description string
	TextHash    string
	Embedding   []float32
}

// Store persists tool embeddings in Postgres via pgvector, using an
// upsert-via-ON-CONFLICT write path and a pgx.CollectRows scan-closure
// pattern for reads.
type Store struct {
	pool  *pgxpool.Pool
	dims  int
	model string
}

// NewStore connects to dsn and ensures the tool_embeddings table/extension
// exist. dims must match the embedder's output dimensionality; model is
// recorded on every row so a later embedder swap can be detected instead
// of silently mixing incompatible vectors.
func NewStore(ctx context.Context, dsn string, dims int, model string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("smartroute: connect: %w", err)
	}
	s := &Store{pool: pool, dims: dims, model: model}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("smartroute: vector extension: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS tool_embeddings (
			server      TEXT NOT NULL,
			tool        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			text_hash   TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			model       TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (server, tool)
		)`, s.dims))
	if err != nil {
		return fmt.Errorf("smartroute: create table: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// TextHash hashes embeddingText, used to short-circuit re-embedding of
// unchanged tool descriptions so repeated writes stay idempotent.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ExistingHash returns the stored text hash for (server,tool), or "" if
// absent, so callers can skip re-embedding unchanged tools.
func (s *Store) ExistingHash(ctx context.Context, server, tool string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT text_hash FROM tool_embeddings WHERE server = $1 AND tool = $2`,
		server, tool).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("smartroute: lookup hash: %w", err)
	}
	return hash, nil
}

// Upsert writes or replaces one tool's embedding.
func (s *Store) Upsert(ctx context.Context, v ToolVector) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tool_embeddings (server, tool, description, text_hash, embedding, model, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (server, tool) DO UPDATE SET
			description = EXCLUDED.description,
			text_hash   = EXCLUDED.text_hash,
			embedding   = EXCLUDED.embedding,
			model       = EXCLUDED.model,
			updated_at  = EXCLUDED.updated_at`,
		v.Server, v.Tool, v.Description, v.TextHash, pgvector.NewVector(v.Embedding), s.model)
	if err != nil {
		return fmt.Errorf("smartroute: upsert: %w", err)
	}
	return nil
}

// DeleteMissing removes rows for (server,*) not present in keepTools,
// applied when a connected connector's tool list shrinks.
func (s *Store) DeleteMissing(ctx context.Context, server string, keepTools []string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tool_embeddings WHERE server = $1 AND NOT (tool = ANY($2))`,
		server, keepTools)
	if err != nil {
		return fmt.Errorf("smartroute: delete missing: %w", err)
	}
	return nil
}

// DeleteServer removes every row for server, applied to a pooled connector
// that is disconnected or disabled.
func (s *Store) DeleteServer(ctx context.Context, server string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tool_embeddings WHERE server = $1`, server)
	if err != nil {
		return fmt.Errorf("smartroute: delete server: %w", err)
	}
	return nil
}

// ScoredTool is one nearest-neighbor search hit.
type ScoredTool struct {
	Server     string
	Tool       string
	Similarity float64
}

// Nearest runs the pgvector cosine-distance query (embedding <=> $1),
// optionally restricted to servers, returning the topK closest matches
// with similarity = 1 - cosine distance (range [-1,1], 1 for the same
// direction).
func (s *Store) Nearest(ctx context.Context, query []float32, topK int, servers []string) ([]ScoredTool, error) {
	var rows pgx.Rows
	var err error
	qv := pgvector.NewVector(query)
	if len(servers) > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT server, tool, 1 - (embedding <=> $1) AS similarity
			FROM tool_embeddings
			WHERE server = ANY($2)
			ORDER BY embedding <=> $1
			LIMIT $3`, qv, servers, topK)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT server, tool, 1 - (embedding <=> $1) AS similarity
			FROM tool_embeddings
			ORDER BY embedding <=> $1
			LIMIT $2`, qv, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("smartroute: nearest query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScoredTool, error) {
		var st ScoredTool
		err := row.Scan(&st.Server, &st.Tool, &st.Similarity)
		return st, err
	})
}
