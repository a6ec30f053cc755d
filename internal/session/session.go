// Package session implements the session collaborator: an opaque
// (key, payload, expiry) blob table fronted by a read-through cache.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oakfield/servicelog/internal/cache"
)

// ErrNoSession is returned when no live blob exists for a key.
var ErrNoSession = errors.New("no session")

// cacheNamespace fronts session payloads in the cache collaborator.
const cacheNamespace = "session"

// Store is the session collaborator interface.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, payload string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists session blobs in the sessions table with cache
// read-through. Cache failures degrade to the table, never to an error.
type SQLStore struct {
	db    executor
	cache cache.Cache
}

// New returns a session store over db fronted by c.
func New(db executor, c cache.Cache) *SQLStore {
	return &SQLStore{db: db, cache: c}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	if v, err := s.cache.Get(ctx, cacheNamespace, key); err == nil {
		return v, nil
	}

	var (
		payload string
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM sessions WHERE key = $1`, key).
		Scan(&payload, &expires)
	if err == sql.ErrNoRows {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session get: %w", err)
	}
	if time.Now().After(expires) {
		_ = s.Delete(ctx, key)
		return "", ErrNoSession
	}

	_ = s.cache.Set(ctx, cacheNamespace, key, payload, time.Until(expires))
	return payload, nil
}

func (s *SQLStore) Set(ctx context.Context, key, payload string, ttl time.Duration) error {
	expires := time.Now().Add(ttl)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = $2, expires_at = $3`,
		key, payload, expires,
	)
	if err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	_ = s.cache.Set(ctx, cacheNamespace, key, payload, ttl)
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	_ = s.cache.Delete(ctx, cacheNamespace, key)
	return nil
}
