package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	_ "github.com/mattn/go-sqlite3"
)

// Store keeps entity properties and partitions in SQLite.
type Store struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertPropertyStmt *sql.Stmt
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	s := &Store{db: db, dbPath: dbPath}

	// Initialize schema before the read-only pool opens the file
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	insertStmt, err := db.Prepare(`INSERT INTO entity_properties (entity, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to prepare insert statement: %w", err)
	}
	s.insertPropertyStmt = insertStmt

	return s, nil
}

// initSchema creates all required tables.
func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// anyVersion disables the version check in apply.
const anyVersion int64 = -1

// Apply replaces the stored properties of entity in one transaction.
func (s *Store) Apply(ctx context.Context, entity string, native map[string]string) error {
	return s.apply(ctx, entity, native, anyVersion)
}

// ApplyIfVersion replaces the stored properties of entity only if its
// version is still version. Version 0 requires that entity does not exist.
func (s *Store) ApplyIfVersion(ctx context.Context, entity string, native map[string]string, version int64) error {
	return s.apply(ctx, entity, native, version)
}

func (s *Store) apply(ctx context.Context, entity string, native map[string]string, expect int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return applyFailed(entity, err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM entities WHERE entity = ?`, entity).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return applyFailed(entity, err)
	}
	if expect != anyVersion && current != expect {
		return metaerrors.ErrVersionConflict.WithProperty(entity)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (entity, version, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(entity) DO UPDATE SET version = version + 1, updated_at = excluded.updated_at`,
		entity, time.Now().Unix(),
	); err != nil {
		return applyFailed(entity, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_properties WHERE entity = ?`, entity); err != nil {
		return applyFailed(entity, err)
	}

	stmt := tx.StmtContext(ctx, s.insertPropertyStmt)
	keys := make([]string, 0, len(native))
	for k := range native {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, entity, k, native[k]); err != nil {
			return applyFailed(entity, err)
		}
	}
	if _, err := recordRevision(ctx, tx, entity, native); err != nil {
		return applyFailed(entity, err)
	}

	if err := tx.Commit(); err != nil {
		return applyFailed(entity, err)
	}
	return nil
}

// Load returns the stored properties of entity.
func (s *Store) Load(ctx context.Context, entity string) (map[string]string, error) {
	props, _, err := s.LoadVersion(ctx, entity)
	return props, err
}

// LoadVersion returns the stored properties of entity and the version they
// belong to, read from one snapshot.
func (s *Store) LoadVersion(ctx context.Context, entity string) (map[string]string, int64, error) {
	tx, err := s.readDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, readFailed(entity, err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM entities WHERE entity = ?`, entity).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, metaerrors.ErrEntityNotFound.WithProperty(entity)
		}
		return nil, 0, readFailed(entity, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM entity_properties WHERE entity = ?`, entity)
	if err != nil {
		return nil, 0, readFailed(entity, err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, 0, readFailed(entity, err)
		}
		props[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, 0, readFailed(entity, err)
	}
	return props, version, nil
}

// Entities returns the names of all stored entities, sorted.
func (s *Store) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT entity FROM entities ORDER BY entity`)
	if err != nil {
		return nil, readFailed("", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, readFailed("", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SavePartition stores p under entity, replacing a partition of the same
// name.
func (s *Store) SavePartition(ctx context.Context, entity string, p partitions.Partition) error {
	payload, err := partitions.Compress(p)
	if err != nil {
		return applyFailed(entity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO partitions (entity, name, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		entity, p.Name(), string(p.Kind()), payload, time.Now().Unix(),
	)
	if err != nil {
		return applyFailed(entity, err)
	}
	return nil
}

// ListPartitions returns the partitions of entity ordered by name.
func (s *Store) ListPartitions(ctx context.Context, entity string) ([]partitions.Partition, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT name, payload FROM partitions WHERE entity = ? ORDER BY name`, entity)
	if err != nil {
		return nil, readFailed(entity, err)
	}
	defer rows.Close()

	var out []partitions.Partition
	for rows.Next() {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, readFailed(entity, err)
		}
		p, err := partitions.Decompress(payload)
		if err != nil {
			return nil, readFailed(entity+"/"+name, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, readFailed(entity, err)
	}
	return out, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	if s.insertPropertyStmt != nil {
		s.insertPropertyStmt.Close()
	}
	// Close read connection first, then write connection
	if err := s.readDB.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func applyFailed(entity string, err error) error {
	return metaerrors.NewBackendError(metaerrors.CodeApplyFailed, "sqlite: apply failed", err).WithProperty(entity)
}

func readFailed(entity string, err error) error {
	return metaerrors.NewBackendError(metaerrors.CodeReadFailed, "sqlite: read failed", err).WithProperty(entity)
}
