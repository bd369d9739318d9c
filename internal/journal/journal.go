// Package journal keeps a local audit trail of every confirmed chunk store
// write, one row per receipt.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/chunksync/internal/db"
)

const DefaultPath = "deploy/journal.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		receipt_id  TEXT NOT NULL,
		path        TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		action      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_path ON receipts (path)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_run ON receipts (run_id)`,
}

type Entry struct {
	ID         int64  `db:"id"`
	RunID      string `db:"run_id"`
	ReceiptID  string `db:"receipt_id"`
	Path       string `db:"path"`
	ChunkIndex int    `db:"chunk_index"`
	Action     string `db:"action"`
	CreatedAt  int64  `db:"created_at"`
}

// Time is CreatedAt as a time.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

type Journal struct {
	db    *sqlx.DB
	clock clockwork.Clock
	owned bool
}

type Option func(*Journal)

func WithClock(clock clockwork.Clock) Option {
	return func(j *Journal) {
		j.clock = clock
	}
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j, err := New(ctx, conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	j.owned = true
	return j, nil
}

// New uses an existing connection. Close leaves it open.
func New(ctx context.Context, conn *sqlx.DB, opts ...Option) (*Journal, error) {
	if err := db.ApplySchema(ctx, conn, schema...); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	j := &Journal{db: conn, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Record appends an entry, stamping CreatedAt when unset.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = j.clock.Now().UnixMilli()
	}
	res, err := j.db.NamedExecContext(ctx, `
		INSERT INTO receipts (run_id, receipt_id, path, chunk_index, action, created_at)
		VALUES (:run_id, :receipt_id, :path, :chunk_index, :action, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ForPath lists the entries of path, oldest first.
func (j *Journal) ForPath(ctx context.Context, path string) ([]*Entry, error) {
	var entries []*Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT * FROM receipts WHERE path = ? ORDER BY id`, path)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return entries, nil
}

// ForRun lists the entries written by one pass.
func (j *Journal) ForRun(ctx context.Context, runID string) ([]*Entry, error) {
	var entries []*Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT * FROM receipts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return entries, nil
}

// Recent lists the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT * FROM receipts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return entries, nil
}

func (j *Journal) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}
