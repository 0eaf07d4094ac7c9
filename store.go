package csvapi

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// dataTableName is the relational table holding the materialized rows.
// The database file itself is named by the identity, so the inner table
// name can stay fixed.
const dataTableName = "data"

// metaTableName holds the column-name to inferred-type mapping needed to
// reconstruct TypeTags without re-running inference.
const metaTableName = "csvapi_columns"

// Identity derives the stable external key for a source address.
func Identity(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])
}

// Store materializes tables into per-identity SQLite database files under a
// root directory and hands out read-only connections to them.
//
// Replacement is copy-on-write: a new database is staged under a unique
// temporary name and renamed over the previous one, so readers observe
// either the fully-old or fully-new table, never a torn mix.
type Store struct {
	rootDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(rootDir string) (*Store, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("%w: empty root directory", ErrMaterialization)
	}
	if err := os.MkdirAll(rootDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create root: %v", ErrMaterialization, err)
	}
	return &Store{
		rootDir: rootDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// RootDir returns the directory holding the database files.
func (s *Store) RootDir() string {
	return s.rootDir
}

// DatabasePath returns the on-disk location for an identity.
func (s *Store) DatabasePath(identity string) string {
	return filepath.Join(s.rootDir, identity+".db")
}

// Exists reports whether a materialized table is visible for the identity.
func (s *Store) Exists(identity string) bool {
	_, err := os.Stat(s.DatabasePath(identity))
	return err == nil
}

// identityLock returns the mutex serializing materializations of one
// identity. Materializations of different identities run concurrently.
func (s *Store) identityLock(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	return lock
}

// Materialize persists the table under the identity, atomically replacing
// any prior table. On failure the staged database is removed and the prior
// table, if any, stays visible. Row identifiers are 1-based in source row
// order for the lifetime of the materialization.
func (s *Store) Materialize(ctx context.Context, table *Table, identity string) error {
	lock := s.identityLock(identity)
	lock.Lock()
	defer lock.Unlock()

	staging := filepath.Join(s.rootDir, fmt.Sprintf("%s.%s.tmp", identity, uuid.NewString()))
	if err := s.writeDatabase(ctx, table, staging); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: %v", ErrMaterialization, err)
	}

	if err := os.Rename(staging, s.DatabasePath(identity)); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: swap: %v", ErrMaterialization, err)
	}
	return nil
}

// writeDatabase builds a complete database file at path: the data table,
// its rows in source order, and the column metadata. Everything runs in a
// single transaction so a cancelled context rolls back cleanly.
func (s *Store) writeDatabase(ctx context.Context, table *Table, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open staging database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	columnInfo := table.ColumnInfo()
	columns := make([]string, 0, len(columnInfo))
	for _, col := range columnInfo {
		columns = append(columns, fmt.Sprintf("%s %s", quoteIdentifier(col.Name), col.Type.sqlType()))
	}
	createData := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(dataTableName), strings.Join(columns, ", "))
	if _, err := tx.ExecContext(ctx, createData); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	createMeta := fmt.Sprintf("CREATE TABLE %s (position INTEGER, name TEXT, type TEXT)", quoteIdentifier(metaTableName))
	if _, err := tx.ExecContext(ctx, createMeta); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}

	metaStmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?)", quoteIdentifier(metaTableName)))
	if err != nil {
		return fmt.Errorf("prepare metadata insert: %w", err)
	}
	defer metaStmt.Close()
	for i, col := range columnInfo {
		if _, err := metaStmt.ExecContext(ctx, i, col.Name, col.Type.String()); err != nil {
			return fmt.Errorf("insert metadata: %w", err)
		}
	}

	placeholders := make([]string, len(columnInfo))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdentifier(dataTableName), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range table.Records() {
		values := make([]any, len(columnInfo))
		for i, col := range columnInfo {
			values[i] = convertValue(col.Type, row[i])
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	return tx.Commit()
}

// OpenRead opens a read-only connection to the identity's database.
// Returns ErrNotFound when no table has been materialized for it.
func (s *Store) OpenRead(identity string) (*sql.DB, error) {
	path := s.DatabasePath(identity)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database for %s: %w", identity, err)
	}
	return db, nil
}

// Columns reads the stored column metadata for an identity, reconstructing
// each column's inferred TypeTag without re-running inference.
func (s *Store) Columns(ctx context.Context, identity string) ([]ColumnInfo, error) {
	db, err := s.OpenRead(identity)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT name, type FROM %s ORDER BY position", quoteIdentifier(metaTableName)))
	if err != nil {
		return nil, fmt.Errorf("read column metadata for %s: %w", identity, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var name, tag string
		if err := rows.Scan(&name, &tag); err != nil {
			return nil, fmt.Errorf("scan column metadata: %w", err)
		}
		columns = append(columns, ColumnInfo{Name: name, Type: typeTagFromString(tag)})
	}
	return columns, rows.Err()
}

// quoteIdentifier quotes a SQL identifier, doubling embedded quotes.
// User-controlled column names only ever reach SQL through this.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
