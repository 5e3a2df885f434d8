package optimize

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/subforge/subforge/internal/observe"
)

// Cache memoizes model responses in a local SQLite database so re-running a
// job does not re-spend tokens on prompts the model has already answered.
// Entries are keyed by namespace and prompt hash; identical prompts under
// different models or modes must use different namespaces.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS responses (
	namespace  TEXT NOT NULL,
	prompt_key TEXT NOT NULL,
	response   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, prompt_key)
);`

// OpenCache opens (creating if needed) the cache database at path. Use
// ":memory:" for a throwaway cache in tests.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("optimize: cache path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}
	// The cache is hit from concurrent batches; a single connection keeps
	// SQLite writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached response for (namespace, prompt), if any.
func (c *Cache) Get(ctx context.Context, namespace, prompt string) (string, bool, error) {
	var response string
	err := c.db.QueryRowContext(ctx,
		`SELECT response FROM responses WHERE namespace = ? AND prompt_key = ?`,
		namespace, promptKey(prompt),
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return response, true, nil
}

// Put stores response for (namespace, prompt), replacing any existing entry.
func (c *Cache) Put(ctx context.Context, namespace, prompt, response string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (namespace, prompt_key, response, created_at) VALUES (?, ?, ?, ?)`,
		namespace, promptKey(prompt), response, time.Now().Unix(),
	)
	return err
}

// promptKey hashes a prompt into a fixed-size key.
func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// cacheGet wraps the cache lookup for one batch prompt; errors are logged
// and treated as misses.
func (o *Orchestrator) cacheGet(ctx context.Context, system, user string) (string, bool) {
	content, ok, err := o.cfg.Cache.Get(ctx, o.cfg.CacheNamespace, system+"\x00"+user)
	if err != nil {
		observe.Logger(ctx).Warn("response cache lookup failed", "error", err)
		return "", false
	}
	return content, ok
}

// cachePut stores one batch response; errors are logged, never fatal.
func (o *Orchestrator) cachePut(ctx context.Context, system, user, content string) {
	if err := o.cfg.Cache.Put(ctx, o.cfg.CacheNamespace, system+"\x00"+user, content); err != nil {
		observe.Logger(ctx).Warn("response cache store failed", "error", err)
	}
}
