// Package secret implements spec.md §6's SecretResolver capability: the
// core never stores or transmits secrets itself, it only asks this
// capability to reveal one by name, the way the teacher's LLM provider
// config resolves `api_key_env` through the environment rather than
// embedding credentials in config.
package secret

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Resolver is spec.md §6's SecretResolver.resolve(literal?, name?,
// default_name) capability. Exactly one of literal or name is normally
// set by a caller; defaultName is used when both are empty.
type Resolver interface {
	Resolve(ctx context.Context, literal, name, defaultName string) (string, error)
}

// Row is the subset of pgx.Row a PostgresResolver needs to read back
// ai.reveal_secret's result.
type Row interface {
	Scan(dest ...any) error
}

// Pool is the subset of pgxpool.Pool a PostgresResolver needs.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresResolver reveals named secrets via ai.reveal_secret, the
// permission-checked SQL function spec.md §1 calls out as an external
// collaborator (gated by _secret_permissions: a session may reveal
// secret `name` iff current_user is a member of the permitted role).
type PostgresResolver struct {
	pool Pool
}

func NewPostgresResolver(pool Pool) *PostgresResolver {
	return &PostgresResolver{pool: pool}
}

// Resolve returns literal unchanged when set (no secret-store round
// trip needed), otherwise reveals name, falling back to defaultName
// when name is also empty.
func (r *PostgresResolver) Resolve(ctx context.Context, literal, name, defaultName string) (string, error) {
	if literal != "" {
		return literal, nil
	}
	secretName := name
	if secretName == "" {
		secretName = defaultName
	}
	if secretName == "" {
		return "", fmt.Errorf("secret: no literal, name, or default_name provided")
	}

	var value string
	row := r.pool.QueryRow(ctx, "SELECT ai.reveal_secret($1)", secretName)
	if err := row.Scan(&value); err != nil {
		return "", fmt.Errorf("secret: reveal %q: %w", secretName, err)
	}
	return value, nil
}

// cacheKey is the (literal?, name?, default_name) tuple spec.md's
// "Shared resources" section keys the per-session cache on.
type cacheKey struct {
	literal     string
	name        string
	defaultName string
}

// SessionCache wraps a Resolver with spec.md §9's "per-session bag":
// one-time resolution per session, never a process-global. A fresh
// SessionCache must be constructed per agent/worker session; sharing
// one across sessions would leak one session's secret into another's
// permission context.
type SessionCache struct {
	inner Resolver
	cache map[cacheKey]string
}

func NewSessionCache(inner Resolver) *SessionCache {
	return &SessionCache{inner: inner, cache: make(map[cacheKey]string)}
}

func (c *SessionCache) Resolve(ctx context.Context, literal, name, defaultName string) (string, error) {
	key := cacheKey{literal: literal, name: name, defaultName: defaultName}
	if value, ok := c.cache[key]; ok {
		return value, nil
	}
	value, err := c.inner.Resolve(ctx, literal, name, defaultName)
	if err != nil {
		return "", err
	}
	c.cache[key] = value
	return value, nil
}
