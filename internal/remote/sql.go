package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/chunksync/internal/db"
	"github.com/openmined/chunksync/internal/errs"
)

var sqlStoreSchema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		path          TEXT PRIMARY KEY,
		redirect_code INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		path         TEXT NOT NULL REFERENCES resources(path) ON DELETE CASCADE,
		idx          INTEGER NOT NULL,
		content      BLOB,
		content_type TEXT NOT NULL,
		receipt_id   TEXT NOT NULL,
		PRIMARY KEY (path, idx)
	)`,
}

type chunkRow struct {
	Content     []byte `db:"content"`
	ContentType string `db:"content_type"`
}

// SQLStore is a ChunkStore persisted in sqlite. It backs the local gateway
// so a build can be previewed without the real remote.
type SQLStore struct {
	db           *sqlx.DB
	maxChunkSize int
}

var _ ChunkStore = (*SQLStore)(nil)

// NewSQLStore prepares the schema on conn. Writes larger than maxChunkSize
// are rejected; zero disables the limit.
func NewSQLStore(ctx context.Context, conn *sqlx.DB, maxChunkSize int) (*SQLStore, error) {
	if err := db.ApplySchema(ctx, conn, sqlStoreSchema...); err != nil {
		return nil, err
	}
	return &SQLStore{db: conn, maxChunkSize: maxChunkSize}, nil
}

func (s *SQLStore) ResourceInfo(ctx context.Context, path string) (*ResourceInfo, error) {
	var row struct {
		Total        int            `db:"total"`
		RedirectCode int            `db:"redirect_code"`
		ContentType  sql.NullString `db:"content_type"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(c.idx) AS total, r.redirect_code,
			(SELECT content_type FROM chunks WHERE path = r.path AND idx = 0) AS content_type
		FROM resources r LEFT JOIN chunks c ON c.path = r.path
		WHERE r.path = ?
		GROUP BY r.path`, path)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Total == 0) {
		return nil, fmt.Errorf("resource %q: %w", path, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w: %w", path, errs.ErrUnavailable, err)
	}

	return &ResourceInfo{
		TotalChunks:  row.Total,
		ContentType:  row.ContentType.String,
		RedirectCode: row.RedirectCode,
	}, nil
}

func (s *SQLStore) GetChunk(ctx context.Context, path string, index int) (*Chunk, error) {
	var row chunkRow
	err := s.db.GetContext(ctx, &row, `SELECT content, content_type FROM chunks WHERE path = ? AND idx = ?`, path, index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %d of %q: %w", index, path, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk %d of %q: %w: %w", index, path, errs.ErrUnavailable, err)
	}
	return &Chunk{Bytes: row.Content, ContentType: row.ContentType}, nil
}

func (s *SQLStore) SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (string, error) {
	if err := s.checkSize(data); err != nil {
		return "", err
	}

	var receipt string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		total, err := s.upsertResource(ctx, tx, path, redirectCode)
		if err != nil {
			return err
		}
		if index < 0 || index > total {
			return fmt.Errorf("set chunk %d of %q with %d chunks: %w", index, path, total, errs.ErrRejected)
		}
		receipt, err = s.putChunk(ctx, tx, path, index, data, contentType)
		return err
	})
	return receipt, err
}

func (s *SQLStore) AppendChunk(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := s.checkSize(data); err != nil {
		return "", err
	}

	var receipt string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		total, err := s.upsertResource(ctx, tx, path, -1)
		if err != nil {
			return err
		}
		receipt, err = s.putChunk(ctx, tx, path, total, data, contentType)
		return err
	})
	return receipt, err
}

func (s *SQLStore) RemoveResource(ctx context.Context, path string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE path = ?`, path)
		return err
	})
}

func (s *SQLStore) checkSize(data []byte) error {
	if s.maxChunkSize > 0 && len(data) > s.maxChunkSize {
		return fmt.Errorf("chunk of %d bytes exceeds limit %d: %w", len(data), s.maxChunkSize, errs.ErrRejected)
	}
	return nil
}

// upsertResource makes sure the resource row exists and returns its chunk
// count. A negative redirectCode keeps the stored one.
func (s *SQLStore) upsertResource(ctx context.Context, tx *sqlx.Tx, path string, redirectCode int) (int, error) {
	if redirectCode < 0 {
		_, err := tx.ExecContext(ctx, `INSERT INTO resources (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, path)
		if err != nil {
			return 0, err
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resources (path, redirect_code) VALUES (?, ?)
			ON CONFLICT(path) DO UPDATE SET redirect_code = excluded.redirect_code`, path, redirectCode)
		if err != nil {
			return 0, err
		}
	}

	var total int
	if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM chunks WHERE path = ?`, path); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLStore) putChunk(ctx context.Context, tx *sqlx.Tx, path string, index int, data []byte, contentType string) (string, error) {
	receipt := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if data == nil {
		data = []byte{}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (path, idx, content, content_type, receipt_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, idx) DO UPDATE SET
			content = excluded.content,
			content_type = excluded.content_type,
			receipt_id = excluded.receipt_id`,
		path, index, data, contentType, receipt)
	if err != nil {
		return "", err
	}
	return receipt, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", errs.ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		if errors.Is(err, errs.ErrRejected) {
			return err
		}
		return fmt.Errorf("%w: %w", errs.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", errs.ErrUnavailable, err)
	}
	return nil
}
