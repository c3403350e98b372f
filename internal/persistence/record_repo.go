package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Backend is a durable name -> blob namespace.
type Backend interface {
	Ready(ctx context.Context) error
	Format(ctx context.Context) error
	Stat(ctx context.Context, name string) (RecordInfo, error)
	Read(ctx context.Context, name string, buf []byte) (int, error)
	Write(ctx context.Context, name string, data []byte) (int, error)
	WriteAt(ctx context.Context, name string, offset int, data []byte) (int, error)
}

type RecordInfo struct {
	Name      string
	Size      int
	UpdatedAt time.Time
}

// RecordRepo stores records as rows of the records table.
type RecordRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db, now: time.Now}
}

func (r *RecordRepo) Ready(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database is not initialized")
	}
	var name string
	err := r.db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'records'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnformatted
	}
	if err != nil {
		return fmt.Errorf("check records table: %w", err)
	}

	return nil
}

// Format leaves an empty records table, creating it when the namespace was never formatted.
func (r *RecordRepo) Format(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database is not initialized")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin format tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range append(schemaStatements, `DELETE FROM records;`) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("format records: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit format tx: %w", err)
	}

	return nil
}

func (r *RecordRepo) Stat(ctx context.Context, name string) (RecordInfo, error) {
	var (
		size      int
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT length(data), updated_at FROM records WHERE name = ?
	`, name).Scan(&size, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RecordInfo{}, ErrRecordNotFound
	}
	if err != nil {
		return RecordInfo{}, fmt.Errorf("stat record %s: %w", name, err)
	}

	return RecordInfo{Name: name, Size: size, UpdatedAt: time.UnixMilli(updatedAt)}, nil
}

// Read copies the record into buf and returns the number of bytes copied.
func (r *RecordRepo) Read(ctx context.Context, name string, buf []byte) (int, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM records WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read record %s: %w", name, err)
	}

	return copy(buf, data), nil
}

func (r *RecordRepo) Write(ctx context.Context, name string, data []byte) (int, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records(name, data, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, name, data, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("upsert record %s: %w", name, err)
	}

	return len(data), nil
}

// WriteAt patches bytes of an existing record in place.
func (r *RecordRepo) WriteAt(ctx context.Context, name string, offset int, data []byte) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin patch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM records WHERE name = ?`, name).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read record %s: %w", name, err)
	}
	if offset < 0 || offset >= len(current) {
		return 0, fmt.Errorf("patch offset %d outside record %s of %d bytes", offset, name, len(current))
	}
	n := copy(current[offset:], data)

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET data = ?, updated_at = ? WHERE name = ?
	`, current, r.now().UnixMilli(), name); err != nil {
		return 0, fmt.Errorf("patch record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit patch tx: %w", err)
	}

	return n, nil
}
