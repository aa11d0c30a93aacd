package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS agent_snapshots (
	id         TEXT PRIMARY KEY,
	reason     TEXT NOT NULL,
	points     INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// SQLStore implements SnapshotStore on PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Open opens a database for dialect at dsn and runs migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		// one writer at a time; also keeps :memory: databases on one connection
		db.SetMaxOpenConns(1)
	}
	store, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the snapshot table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) SaveSnapshot(ctx context.Context, record Record) error {
	query := fmt.Sprintf(`
		INSERT INTO agent_snapshots (id, reason, points, payload, created_at)
		VALUES (%s, %s, %s, %s, %s)`, s.arg(1), s.arg(2), s.arg(3), s.arg(4), s.arg(5))

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Reason, record.Points, string(record.Payload),
		record.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSnapshot(ctx context.Context, id string) (Record, error) {
	query := `
		SELECT id, reason, points, payload, created_at
		FROM agent_snapshots WHERE id = ` + s.arg(1)

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return Record{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return record, nil
}

func (s *SQLStore) LatestSnapshot(ctx context.Context) (Record, error) {
	query := `
		SELECT id, reason, points, payload, created_at
		FROM agent_snapshots ORDER BY created_at DESC, id DESC LIMIT 1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return Record{}, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return record, nil
}

func (s *SQLStore) ListSnapshots(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, reason, points, created_at
		FROM agent_snapshots ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT " + s.arg(1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var createdAt string
		if err := rows.Scan(&record.ID, &record.Reason, &record.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if record.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return records, nil
}

func (s *SQLStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	query := fmt.Sprintf(`
		DELETE FROM agent_snapshots WHERE id NOT IN (
			SELECT id FROM agent_snapshots ORDER BY created_at DESC, id DESC LIMIT %s
		)`, s.arg(1))

	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(removed), nil
}

// arg returns the n-th (1-based) bind placeholder.
func (s *SQLStore) arg(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func scanRecord(row *sql.Row) (Record, error) {
	var record Record
	var payload, createdAt string
	err := row.Scan(&record.ID, &record.Reason, &record.Points, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	record.Payload = []byte(payload)
	if record.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	return record, nil
}

// isUniqueViolation reports primary-key collisions from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
