package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rcliao/tiermem/internal/model"
)

// SQLiteBackend stores snapshots in a SQLite database. Each Write replaces
// every row inside a single transaction.
type SQLiteBackend struct {
	db *sql.DB
	// quarantined is where an unreadable database file was moved on open.
	quarantined string
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
// A file that SQLite reports as corrupt or not a database is renamed aside
// and a fresh database is created in its place.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	b, err := openSQLite(dbPath)
	if err == nil || !isCorrupt(err) {
		return b, err
	}

	moved := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().UnixNano())
	if rerr := os.Rename(dbPath, moved); rerr != nil {
		return nil, errors.Join(err, fmt.Errorf("move corrupt db aside: %w", rerr))
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Rename(dbPath+suffix, moved+suffix)
	}
	b, err = openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	b.quarantined = moved
	return b, nil
}

func openSQLite(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// Quarantined returns the path an unreadable database was moved to when
// the backend was opened, or "".
func (b *SQLiteBackend) Quarantined() string { return b.quarantined }

func isCorrupt(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	}
	return false
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot_info (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		id               TEXT PRIMARY KEY,
		content          TEXT NOT NULL,
		type             TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL,
		access_count     INTEGER NOT NULL DEFAULT 0,
		importance       REAL NOT NULL DEFAULT 0.5,
		tags             TEXT,
		source           TEXT,
		merged_from      TEXT,
		low_confidence   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		memory_id TEXT PRIMARY KEY REFERENCES memories(id),
		dims      INTEGER NOT NULL,
		vector    BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		memory_id        TEXT PRIMARY KEY REFERENCES memories(id),
		tier             TEXT NOT NULL,
		working          INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL,
		access_count     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tiers (
		tier      TEXT NOT NULL,
		memory_id TEXT NOT NULL REFERENCES memories(id),
		PRIMARY KEY (tier, memory_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tiers_memory ON tiers(memory_id);

	CREATE TABLE IF NOT EXISTS working (
		memory_id  TEXT PRIMARY KEY REFERENCES memories(id),
		entered_at TEXT NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Write(ctx context.Context, s *Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"working", "tiers", "metadata", "embeddings", "memories", "snapshot_info"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_info (key, value) VALUES ('version', ?), ('saved_at', ?)`,
		fmt.Sprint(s.Version), formatTime(s.SavedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot info: %w", err)
	}

	for _, m := range s.Memories {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memories (id, content, type, created_at, last_accessed_at, access_count,
			                       importance, tags, source, merged_from, low_confidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Content, m.Type, formatTime(m.CreatedAt), formatTime(m.LastAccessedAt),
			m.AccessCount, m.Importance, jsonList(m.Tags), nullable(m.Source), jsonList(m.MergedFrom),
			m.LowConfidence)
		if err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}

		v := s.Embeddings[m.ID]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO embeddings (memory_id, dims, vector) VALUES (?, ?, ?)`,
			m.ID, len(v), encodeVector(v))
		if err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}

		md := s.Metadata[m.ID]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO metadata (memory_id, tier, working, created_at, last_accessed_at, access_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, string(md.Tier), md.Working, formatTime(md.CreatedAt), formatTime(md.LastAccessedAt), md.AccessCount)
		if err != nil {
			return fmt.Errorf("insert metadata: %w", err)
		}
	}

	for t, ids := range s.Tiers {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `INSERT INTO tiers (tier, memory_id) VALUES (?, ?)`, string(t), id); err != nil {
				return fmt.Errorf("insert tier: %w", err)
			}
		}
	}
	for id, at := range s.Working {
		if _, err := tx.ExecContext(ctx, `INSERT INTO working (memory_id, entered_at) VALUES (?, ?)`, id, formatTime(at)); err != nil {
			return fmt.Errorf("insert working: %w", err)
		}
	}

	return tx.Commit()
}

func (b *SQLiteBackend) Read(ctx context.Context) (*Snapshot, error) {
	s := New()

	var version, savedAt sql.NullString
	err := b.db.QueryRowContext(ctx, `SELECT value FROM snapshot_info WHERE key = 'version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot version: %w", err)
	}
	err = b.db.QueryRowContext(ctx, `SELECT value FROM snapshot_info WHERE key = 'saved_at'`).Scan(&savedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read snapshot time: %w", err)
	}
	if !version.Valid {
		return nil, ErrNotExist
	}
	if _, err := fmt.Sscan(version.String, &s.Version); err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrCorrupt, version.String)
	}
	s.SavedAt = parseTime(savedAt.String)

	rows, err := b.db.QueryContext(ctx,
		`SELECT id, content, type, created_at, last_accessed_at, access_count,
		        importance, tags, source, merged_from, low_confidence
		 FROM memories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		s.Memories = append(s.Memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := b.readEmbeddings(ctx, s); err != nil {
		return nil, err
	}
	if err := b.readMetadata(ctx, s); err != nil {
		return nil, err
	}
	if err := b.readTiers(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *SQLiteBackend) readEmbeddings(ctx context.Context, s *Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `SELECT memory_id, dims, vector FROM embeddings`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return err
		}
		v, err := decodeVector(blob)
		if err != nil {
			return err
		}
		if len(v) != dims {
			return fmt.Errorf("%w: embedding %s has %d dims, recorded %d", ErrCorrupt, id, len(v), dims)
		}
		s.Embeddings[id] = v
	}
	return rows.Err()
}

func (b *SQLiteBackend) readMetadata(ctx context.Context, s *Snapshot) error {
	rows, err := b.db.QueryContext(ctx,
		`SELECT memory_id, tier, working, created_at, last_accessed_at, access_count FROM metadata`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, tier, created, accessed string
			md                          model.Metadata
		)
		if err := rows.Scan(&id, &tier, &md.Working, &created, &accessed, &md.AccessCount); err != nil {
			return err
		}
		md.Tier = model.Tier(tier)
		md.CreatedAt = parseTime(created)
		md.LastAccessedAt = parseTime(accessed)
		s.Metadata[id] = md
	}
	return rows.Err()
}

func (b *SQLiteBackend) readTiers(ctx context.Context, s *Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `SELECT tier, memory_id FROM tiers ORDER BY memory_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tier, id string
		if err := rows.Scan(&tier, &id); err != nil {
			return err
		}
		s.Tiers[model.Tier(tier)] = append(s.Tiers[model.Tier(tier)], id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	wrows, err := b.db.QueryContext(ctx, `SELECT memory_id, entered_at FROM working`)
	if err != nil {
		return err
	}
	defer wrows.Close()
	for wrows.Next() {
		var id, at string
		if err := wrows.Scan(&id, &at); err != nil {
			return err
		}
		s.Working[id] = parseTime(at)
	}
	return wrows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var tagsJSON, source, mergedJSON sql.NullString
	var createdAt, lastAccessed string

	err := row.Scan(
		&m.ID, &m.Content, &m.Type, &createdAt, &lastAccessed, &m.AccessCount,
		&m.Importance, &tagsJSON, &source, &mergedJSON, &m.LowConfidence,
	)
	if err != nil {
		return m, err
	}

	m.CreatedAt = parseTime(createdAt)
	m.LastAccessedAt = parseTime(lastAccessed)
	if source.Valid {
		m.Source = source.String
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
	if mergedJSON.Valid {
		json.Unmarshal([]byte(mergedJSON.String), &m.MergedFrom)
	}
	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func jsonList(v []string) *string {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	s := string(b)
	return &s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
