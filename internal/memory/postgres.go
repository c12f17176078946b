package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tiryaq/voice/internal/types"
)

// Schema creates the tables the Postgres backend uses.
const Schema = `
CREATE TABLE IF NOT EXISTS user_context (
    tenant_id        TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    first_name       TEXT NOT NULL DEFAULT '',
    long_term_memory TEXT NOT NULL DEFAULT '',
    history          JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (tenant_id, user_id)
);
CREATE TABLE IF NOT EXISTS session_log (
    session_id TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    logged_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Backend on a PostgreSQL database.
type Postgres struct {
	db   DB
	ping func(context.Context) error
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool, applies Schema and returns the backend.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory: ping: %w", err)
	}
	p := NewPostgres(pool, pool.Ping)
	p.pool = pool
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection. ping may be nil.
func NewPostgres(db DB, ping func(context.Context) error) *Postgres {
	return &Postgres{db: db, ping: ping}
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("memory: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping(ctx)
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Load(ctx context.Context, tenant, user string) (Context, bool, error) {
	const query = `
		SELECT first_name, long_term_memory, history, created_at
		FROM user_context
		WHERE tenant_id = $1 AND user_id = $2`

	var (
		c    Context
		hist []byte
	)
	err := p.db.QueryRow(ctx, query, tenant, user).Scan(&c.FirstName, &c.LongTermMemory, &hist, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Context{}, false, nil
		}
		return Context{}, false, fmt.Errorf("memory: load %s/%s: %w", tenant, user, err)
	}
	if err := json.Unmarshal(hist, &c.History); err != nil {
		return Context{}, false, fmt.Errorf("memory: decode history: %w", err)
	}
	if c.FirstName == "" {
		c.FirstName = DefaultFirstName
	}
	return c, true, nil
}

func (p *Postgres) SaveSummary(ctx context.Context, tenant, user, summary string) error {
	const query = `
		INSERT INTO user_context (tenant_id, user_id, first_name, long_term_memory)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET long_term_memory = EXCLUDED.long_term_memory, updated_at = now()`

	if _, err := p.db.Exec(ctx, query, tenant, user, DefaultFirstName, summary); err != nil {
		return fmt.Errorf("memory: save summary: %w", err)
	}
	return nil
}

func (p *Postgres) SaveHistory(ctx context.Context, tenant, user string, history []types.Turn) error {
	if history == nil {
		history = []types.Turn{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("memory: encode history: %w", err)
	}
	const query = `
		INSERT INTO user_context (tenant_id, user_id, first_name, history)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET history = EXCLUDED.history, updated_at = now()`

	if _, err := p.db.Exec(ctx, query, tenant, user, DefaultFirstName, hist); err != nil {
		return fmt.Errorf("memory: save history: %w", err)
	}
	return nil
}

func (p *Postgres) LogSession(ctx context.Context, sessionID string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("memory: encode session log: %w", err)
	}
	const query = `
		INSERT INTO session_log (session_id, data) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, logged_at = now()`

	if _, err := p.db.Exec(ctx, query, sessionID, b); err != nil {
		return fmt.Errorf("memory: log session: %w", err)
	}
	return nil
}
