// Package sqlstore implements the document store and reference table on a
// SQL database. Postgres (lib/pq) and SQLite (go-sqlite3) share one schema;
// only the placeholder format differs.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
)

// Dialect selects SQL syntax details for the connected database.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

const (
	recordsTable    = "records"
	childrenTable   = "child_records"
	referencesTable = "reference_entries"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		title      TEXT NOT NULL,
		attrs      TEXT NOT NULL,
		refs       TEXT NOT NULL,
		children   TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (kind, title)
	)`,
	`CREATE TABLE IF NOT EXISTS child_records (
		id        TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		kind      TEXT NOT NULL,
		attrs     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS child_records_parent_idx ON child_records (parent_id)`,
	`CREATE TABLE IF NOT EXISTS reference_entries (
		ref_table       TEXT NOT NULL,
		id              TEXT NOT NULL,
		name            TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		PRIMARY KEY (ref_table, id)
	)`,
	`CREATE INDEX IF NOT EXISTS reference_entries_name_idx ON reference_entries (ref_table, normalized_name)`,
}

// Store is a store.DocumentStore and store.ReferenceResolver over *sql.DB.
type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	var format sq.PlaceholderFormat = sq.Dollar
	if dialect == SQLite {
		format = sq.Question
	}
	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(format),
		now: time.Now,
	}
}

// OpenSQLite opens the database file at path, creating its directory when
// needed. ":memory:" is allowed; the pool is limited to one connection so
// every query sees the same database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates the tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Ping is used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func exec(ctx context.Context, q queryer, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (s *Store) recordColumns() []string {
	return []string{"id", "kind", "title", "attrs", "refs", "children", "created_at", "updated_at"}
}

func scanRecord(row interface{ Scan(...any) error }) (*legislation.Record, error) {
	var (
		rec                   legislation.Record
		kind                  string
		attrs, refs, children string
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Title, &attrs, &refs, &children, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = legislation.Kind(kind)
	a, err := legislation.DecodeAttrs(kind, []byte(attrs))
	if err != nil {
		return nil, err
	}
	rec.Attrs = a
	if err := json.Unmarshal([]byte(refs), &rec.Refs); err != nil {
		return nil, fmt.Errorf("decoding refs of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(children), &rec.Children); err != nil {
		return nil, fmt.Errorf("decoding children of %s: %w", rec.ID, err)
	}
	if rec.Refs == nil {
		rec.Refs = map[string][]string{}
	}
	if rec.Children == nil {
		rec.Children = map[string][]string{}
	}
	return &rec, nil
}

func (s *Store) Find(ctx context.Context, kind legislation.Kind, title string) (*legislation.Record, error) {
	query, args, err := s.sb.Select(s.recordColumns()...).
		From(recordsTable).
		Where(sq.Eq{"kind": string(kind), "title": title}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %q: %w", kind, title, err)
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, rec *legislation.Record) error {
	attrs, err := legislation.EncodeAttrs(rec.Attrs)
	if err != nil {
		return fmt.Errorf("encoding attrs of %s: %w", rec.Title, err)
	}
	refs, err := json.Marshal(nonNil(rec.Refs))
	if err != nil {
		return fmt.Errorf("encoding refs of %s: %w", rec.Title, err)
	}
	children, err := json.Marshal(nonNil(rec.Children))
	if err != nil {
		return fmt.Errorf("encoding children of %s: %w", rec.Title, err)
	}

	now := s.now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.sb.Select("id").
			From(recordsTable).
			Where(sq.Eq{"kind": string(rec.Kind), "title": rec.Title}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building query: %w", err)
		}
		var owner string
		switch err := tx.QueryRowContext(ctx, query, args...).Scan(&owner); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("%w: checking title: %v", apperrors.ErrPersistence, err)
		case owner != rec.ID:
			return fmt.Errorf("%w: %s %q", store.ErrDuplicateTitle, rec.Kind, rec.Title)
		}

		return exec(ctx, tx, s.sb.Insert(recordsTable).
			Columns(s.recordColumns()...).
			Values(rec.ID, string(rec.Kind), rec.Title, string(attrs), string(refs), string(children), createdAt, now).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				kind = EXCLUDED.kind,
				title = EXCLUDED.title,
				attrs = EXCLUDED.attrs,
				refs = EXCLUDED.refs,
				children = EXCLUDED.children,
				updated_at = EXCLUDED.updated_at`))
	})
	if err != nil {
		return err
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now
	return nil
}

func (s *Store) CreateChildren(ctx context.Context, children []*legislation.ChildRecord) error {
	if len(children) == 0 {
		return nil
	}
	insert := s.sb.Insert(childrenTable).Columns("id", "parent_id", "kind", "attrs")
	for _, c := range children {
		attrs, err := legislation.EncodeAttrs(c.Attrs)
		if err != nil {
			return fmt.Errorf("encoding child %s: %w", c.ID, err)
		}
		insert = insert.Values(c.ID, c.ParentID, string(c.Kind), string(attrs))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return exec(ctx, tx, insert)
	})
}

// LoadChildren returns the children with the given ids in the order asked.
// Unknown ids are skipped.
func (s *Store) LoadChildren(ctx context.Context, ids []string) ([]*legislation.ChildRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := s.sb.Select("id", "parent_id", "kind", "attrs").
		From(childrenTable).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading children: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*legislation.ChildRecord, len(ids))
	for rows.Next() {
		var (
			c           legislation.ChildRecord
			kind, attrs string
		)
		if err := rows.Scan(&c.ID, &c.ParentID, &kind, &attrs); err != nil {
			return nil, fmt.Errorf("scanning child: %w", err)
		}
		c.Kind = legislation.ChildKind(kind)
		if c.Attrs, err = legislation.DecodeAttrs(kind, []byte(attrs)); err != nil {
			return nil, err
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating children: %w", err)
	}

	out := make([]*legislation.ChildRecord, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) DeleteChildren(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return exec(ctx, s.db, s.sb.Delete(childrenTable).Where(sq.Eq{"id": ids}))
}

func (s *Store) FindRecordsByTitles(ctx context.Context, kind legislation.Kind, titles []string) (map[string]*legislation.Record, error) {
	out := make(map[string]*legislation.Record, len(titles))
	if len(titles) == 0 {
		return out, nil
	}
	query, args, err := s.sb.Select(s.recordColumns()...).
		From(recordsTable).
		Where(sq.Eq{"kind": string(kind), "title": titles}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding %s records by title: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out[rec.Title] = rec
	}
	return out, rows.Err()
}

// UpsertReference inserts or renames a reference entry.
func (s *Store) UpsertReference(ctx context.Context, ref legislation.Reference) error {
	return exec(ctx, s.db, s.sb.Insert(referencesTable).
		Columns("ref_table", "id", "name", "normalized_name").
		Values(ref.Table, ref.ID, ref.Name, store.NormalizeName(ref.Name)).
		Suffix(`ON CONFLICT (ref_table, id) DO UPDATE SET
			name = EXCLUDED.name,
			normalized_name = EXCLUDED.normalized_name`))
}

func (s *Store) FindReference(ctx context.Context, table, name string) (*legislation.Reference, error) {
	query, args, err := s.sb.Select("ref_table", "id", "name").
		From(referencesTable).
		Where(sq.Eq{"ref_table": table, "normalized_name": store.NormalizeName(name)}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var ref legislation.Reference
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&ref.Table, &ref.ID, &ref.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %q: %w", table, name, err)
	}
	return &ref, nil
}

func nonNil(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}
