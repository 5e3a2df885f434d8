// Package pgstore backs the glossary with PostgreSQL: a persistent term
// table shared between jobs, plus a pgvector-indexed manuscript chunk table
// for semantic prompt-context excerpts.
//
// The pgvector extension must be available in the target database; [New]
// installs it via CREATE EXTENSION IF NOT EXISTS and creates the tables.
package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/subforge/subforge/pkg/provider/embeddings"
	"github.com/subforge/subforge/pkg/subtitle"
)

// Store is the PostgreSQL-backed glossary and manuscript index. All methods
// are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// New connects to the database at dsn, registers pgvector types on every
// connection, and ensures the schema exists. The embedder supplies vectors
// for manuscript chunks; its dimension fixes the vector column width, so
// changing models later requires a manual schema change.
func New(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("glossary store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("glossary store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("glossary store: ping: %w", err)
	}
	if err := migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("glossary store: migrate: %w", err)
	}
	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() { s.pool.Close() }

func migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS glossary_terms (
			source TEXT PRIMARY KEY,
			target TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS manuscript_chunks (
			id        BIGSERIAL PRIMARY KEY,
			document  TEXT      NOT NULL,
			position  INT       NOT NULL,
			content   TEXT      NOT NULL,
			embedding vector(%d) NOT NULL,
			UNIQUE (document, position)
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_manuscript_chunks_embedding
			ON manuscript_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// UpsertTerms stores glossary entries, replacing targets of existing
// sources.
func (s *Store) UpsertTerms(ctx context.Context, entries []subtitle.GlossaryEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO glossary_terms (source, target) VALUES ($1, $2)
			ON CONFLICT (source) DO UPDATE SET target = EXCLUDED.target`,
			e.Source, e.Target,
		)
		if err != nil {
			return fmt.Errorf("glossary store: upsert term %q: %w", e.Source, err)
		}
	}
	return nil
}

// LoadTerms returns all stored glossary entries.
func (s *Store) LoadTerms(ctx context.Context) ([]subtitle.GlossaryEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, target FROM glossary_terms ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("glossary store: load terms: %w", err)
	}
	defer rows.Close()

	var entries []subtitle.GlossaryEntry
	for rows.Next() {
		var e subtitle.GlossaryEntry
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("glossary store: scan term: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// manuscriptChunkUnits is the approximate chunk size for manuscript
// indexing, in characters.
const manuscriptChunkUnits = 600

// IndexManuscript splits text into paragraph-aligned chunks, embeds them,
// and replaces the stored chunks for document.
func (s *Store) IndexManuscript(ctx context.Context, document, text string) error {
	chunks := chunkManuscript(text)
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("glossary store: embed manuscript: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("glossary store: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("glossary store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM manuscript_chunks WHERE document = $1`, document); err != nil {
		return fmt.Errorf("glossary store: clear document: %w", err)
	}
	for i, chunk := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO manuscript_chunks (document, position, content, embedding)
			VALUES ($1, $2, $3, $4)`,
			document, i, chunk, pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("glossary store: insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

// Excerpt returns the stored manuscript chunk closest (cosine distance) to
// query, or the empty string when nothing is indexed.
func (s *Store) Excerpt(ctx context.Context, query string, limit int) (string, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("glossary store: embed query: %w", err)
	}

	var content string
	err = s.pool.QueryRow(ctx, `
		SELECT content FROM manuscript_chunks
		ORDER BY embedding <=> $1
		LIMIT 1`,
		pgvector.NewVector(vec),
	).Scan(&content)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("glossary store: excerpt query: %w", err)
	}

	runes := []rune(content)
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes), nil
}

// PromptContext assembles the glossary table plus the semantically closest
// manuscript excerpt for query, within limit characters. It satisfies the
// orchestrator's context-source contract.
func (s *Store) PromptContext(ctx context.Context, query string, limit int) (string, error) {
	if limit <= 0 {
		limit = 1000
	}

	entries, err := s.LoadTerms(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(entries) > 0 {
		b.WriteString("Glossary (always use the right-hand form):\n")
		for _, e := range entries {
			line := fmt.Sprintf("- %s => %s\n", e.Source, e.Target)
			if b.Len()+len(line) > limit {
				break
			}
			b.WriteString(line)
		}
	}

	if b.Len() < limit {
		excerpt, err := s.Excerpt(ctx, query, limit-b.Len())
		if err != nil {
			return "", err
		}
		if excerpt != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("Reference manuscript excerpt:\n")
			b.WriteString(excerpt)
		}
	}
	return b.String(), nil
}

// chunkManuscript splits text on blank lines, packing paragraphs into
// chunks of roughly manuscriptChunkUnits characters.
func chunkManuscript(text string) []string {
	var chunks []string
	var cur strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para) > manuscriptChunkUnits {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
