package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcliao/tiermem/internal/model"
)

// PostgresBackend persists snapshots in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tiermem_snapshot (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiermem_memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			tags TEXT[] NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT '',
			merged_from TEXT[] NOT NULL DEFAULT '{}',
			low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
			vector BYTEA NOT NULL,
			tier TEXT NOT NULL,
			working BOOLEAN NOT NULL DEFAULT FALSE,
			working_since TIMESTAMPTZ,
			meta_created_at TIMESTAMPTZ NOT NULL,
			meta_last_accessed_at TIMESTAMPTZ NOT NULL,
			meta_access_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiermem_memories_tier ON tiermem_memories (tier);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

var memoryColumns = []string{
	"id", "content", "type", "created_at", "last_accessed_at", "access_count",
	"importance", "tags", "source", "merged_from", "low_confidence", "vector",
	"tier", "working", "working_since", "meta_created_at", "meta_last_accessed_at", "meta_access_count",
}

// Write replaces the stored snapshot in one transaction. Tier membership,
// metadata and the embedding are flattened into the memory row.
func (b *PostgresBackend) Write(ctx context.Context, s *Snapshot) error {
	tierOf := make(map[string]model.Tier, len(s.Memories))
	for t, ids := range s.Tiers {
		for _, id := range ids {
			tierOf[id] = t
		}
	}

	rows := make([][]any, 0, len(s.Memories))
	for _, m := range s.Memories {
		md := s.Metadata[m.ID]
		var since *time.Time
		if at, ok := s.Working[m.ID]; ok {
			since = &at
		}
		rows = append(rows, []any{
			m.ID, m.Content, m.Type, m.CreatedAt, m.LastAccessedAt, m.AccessCount,
			m.Importance, nonNil(m.Tags), m.Source, nonNil(m.MergedFrom), m.LowConfidence,
			encodeVector(s.Embeddings[m.ID]),
			string(tierOf[m.ID]), md.Working, since, md.CreatedAt, md.LastAccessedAt, md.AccessCount,
		})
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tiermem_memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tiermem_memories"}, memoryColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy memories: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO tiermem_snapshot (id, version, saved_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, saved_at = EXCLUDED.saved_at`,
		s.Version, s.SavedAt)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return tx.Commit(ctx)
}

func (b *PostgresBackend) Read(ctx context.Context) (*Snapshot, error) {
	s := New()
	err := b.pool.QueryRow(ctx, `SELECT version, saved_at FROM tiermem_snapshot WHERE id = 1`).Scan(&s.Version, &s.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := b.pool.Query(ctx, `SELECT `+strings.Join(memoryColumns, ", ")+` FROM tiermem_memories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m     model.Memory
			md    model.Metadata
			blob  []byte
			tier  string
			since *time.Time
		)
		if err := rows.Scan(
			&m.ID, &m.Content, &m.Type, &m.CreatedAt, &m.LastAccessedAt, &m.AccessCount,
			&m.Importance, &m.Tags, &m.Source, &m.MergedFrom, &m.LowConfidence, &blob,
			&tier, &md.Working, &since, &md.CreatedAt, &md.LastAccessedAt, &md.AccessCount,
		); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if len(m.Tags) == 0 {
			m.Tags = nil
		}
		if len(m.MergedFrom) == 0 {
			m.MergedFrom = nil
		}
		md.Tier = model.Tier(tier)
		s.Memories = append(s.Memories, m)
		s.Embeddings[m.ID] = v
		s.Metadata[m.ID] = md
		s.Tiers[md.Tier] = append(s.Tiers[md.Tier], m.ID)
		if since != nil {
			s.Working[m.ID] = *since
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return s, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
