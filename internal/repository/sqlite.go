package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DocumentDB implements DocumentStore on a single SQL table.
type DocumentDB struct {
	db *sqlx.DB
}

func NewSQLiteDB(path string) (*DocumentDB, error) {
	return NewDocumentDB(DriverSQLite, path)
}

func NewDocumentDB(driver, dsn string) (*DocumentDB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if driver == DriverSQLite {
		// single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &DocumentDB{
		db: db,
	}
	if err := s.migrate(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *DocumentDB) migrate(driver string) error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			parent TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent, doc_key);
	`
	if driver == DriverPostgres {
		schema = `
			CREATE TABLE IF NOT EXISTS documents (
				path TEXT PRIMARY KEY,
				parent TEXT NOT NULL,
				doc_key TEXT NOT NULL,
				value TEXT NOT NULL,
				updated_at BIGINT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent, doc_key);
		`
	}

	_, err := s.db.Exec(schema)
	return err
}

func (s *DocumentDB) Close() error {
	return s.db.Close()
}

func (s *DocumentDB) Get(ctx context.Context, path string, dest any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}

	var raw string
	err = s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT value FROM documents WHERE path = ?`), p)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", p, err)
	}

	if dest == nil {
		return true, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("decode %s: %w", p, err)
	}
	return true, nil
}

func (s *DocumentDB) Set(ctx context.Context, path string, value any) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return s.write(ctx, s.db, p, data)
}

func (s *DocumentDB) Push(ctx context.Context, path string, value any) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	if err := s.Set(ctx, p+"/"+id.String(), value); err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *DocumentDB) Update(ctx context.Context, path string, partial map[string]any) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s: %w", p, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var raw string
	err = tx.GetContext(ctx, &raw, tx.Rebind(`SELECT value FROM documents WHERE path = ?`), p)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", p, err)
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("update %s: existing value is not an object: %w", p, err)
	}

	for k, v := range partial {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		doc[k] = encoded
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	if err := s.write(ctx, tx, p, data); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DocumentDB) Delete(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}

	lo, hi := descendantRange(p)
	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM documents WHERE path = ? OR (path > ? AND path < ?)`),
		p, lo, hi,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

func (s *DocumentDB) List(ctx context.Context, path string) ([]Entry, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx,
		s.db.Rebind(`SELECT doc_key, value FROM documents WHERE parent = ? ORDER BY doc_key`), p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		entries = append(entries, Entry{Key: key, Value: json.RawMessage(value)})
	}
	return entries, rows.Err()
}

func (s *DocumentDB) Children(ctx context.Context, path string) ([]string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	lo, hi := descendantRange(p)
	var paths []string
	err = s.db.SelectContext(ctx, &paths,
		s.db.Rebind(`SELECT path FROM documents WHERE path > ? AND path < ? ORDER BY path`), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", p, err)
	}

	var keys []string
	for _, full := range paths {
		key, _, _ := strings.Cut(full[len(lo):], "/")
		if len(keys) == 0 || keys[len(keys)-1] != key {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *DocumentDB) write(ctx context.Context, ex sqlx.ExtContext, path string, data []byte) error {
	parent, key := splitParent(path)
	query := ex.Rebind(`
		INSERT INTO documents (path, parent, doc_key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if _, err := ex.ExecContext(ctx, query, path, parent, key, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// descendantRange returns the exclusive key bounds covering every path below p.
// '0' is the byte after '/', so [p+"/", p+"0") spans exactly the subtree.
func descendantRange(p string) (string, string) {
	return p + "/", p + "0"
}
