package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/neisanworks/neisan-mongo/codec"
	"github.com/neisanworks/neisan-mongo/diff"
	"github.com/neisanworks/neisan-mongo/internal/query"
)

// SQLite is a durable Driver persisting wire documents as JSON rows. It
// targets embedded use; one database file holds every collection.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS unique_fields (
	collection TEXT NOT NULL,
	field      TEXT NOT NULL,
	PRIMARY KEY (collection, field)
);`

// OpenSQLite opens (creating if necessary) a sqlite-backed store at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// The modernc driver serializes writes per connection; a single
	// connection avoids SQLITE_BUSY on concurrent callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) EnsureUnique(ctx context.Context, collection, field string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO unique_fields (collection, field) VALUES (?, ?)`,
		collection, field)
	return err
}

func (s *SQLite) uniqueFields(ctx context.Context, q queryer, collection string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT field FROM unique_fields WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// checkUnique scans the collection for another document carrying the same
// value on any declared unique field.
func (s *SQLite) checkUnique(ctx context.Context, q queryer, collection, id string, doc map[string]any) error {
	fields, err := s.uniqueFields(ctx, q, collection)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? AND id != ?`, collection, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var otherID, body string
		if err := rows.Scan(&otherID, &body); err != nil {
			return err
		}
		var other map[string]any
		if err := json.Unmarshal([]byte(body), &other); err != nil {
			return fmt.Errorf("store: corrupt document %s/%s: %w", collection, otherID, err)
		}
		for _, field := range fields {
			val, ok := doc[field]
			if !ok {
				continue
			}
			if ov, ok := other[field]; ok && codec.Equal(ov, val) {
				return &ConflictError{Field: field, Value: val}
			}
		}
	}
	return rows.Err()
}

func (s *SQLite) InsertOne(ctx context.Context, collection string, doc map[string]any) (InsertResult, error) {
	id, _ := doc[codec.IDField].(string)

	body, err := json.Marshal(doc)
	if err != nil {
		return InsertResult{}, fmt.Errorf("store: marshal document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback()

	if err := s.checkUnique(ctx, tx, collection, id, doc); err != nil {
		return InsertResult{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
		collection, id, string(body))
	if err != nil {
		if isConstraintError(err) {
			return InsertResult{}, ErrDuplicateID
		}
		return InsertResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Acknowledged: true}, nil
}

func (s *SQLite) FindOneAndUpdate(ctx context.Context, collection, id string, update map[string]any) (UpdateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, err
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return UpdateResult{Acknowledged: true, Document: nil}, nil
	}
	if err != nil {
		return UpdateResult{}, err
	}

	var current map[string]any
	if err := json.Unmarshal([]byte(body), &current); err != nil {
		return UpdateResult{}, fmt.Errorf("store: corrupt document %s/%s: %w", collection, id, err)
	}

	updated, err := diff.ApplyUpdate(current, update)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := s.checkUnique(ctx, tx, collection, id, updated); err != nil {
		return UpdateResult{}, err
	}

	newBody, err := json.Marshal(updated)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("store: marshal document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE collection = ? AND id = ?`,
		string(newBody), collection, id); err != nil {
		return UpdateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Acknowledged: true, Document: updated}, nil
}

func (s *SQLite) DeleteOne(ctx context.Context, collection, id string) (DeleteResult, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return DeleteResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Acknowledged: true, Found: n > 0}, nil
}

func (s *SQLite) OpenResultStream(ctx context.Context, collection string, filter map[string]any, opts Options) (Stream, error) {
	matcher, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshot []map[string]any
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("store: corrupt document %s/%s: %w", collection, id, err)
		}
		if matcher.Matches(doc) {
			snapshot = append(snapshot, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortDocs(snapshot, opts)
	return &sliceStream{docs: snapshot}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func isConstraintError(err error) bool {
	// modernc.org/sqlite reports constraint violations in the error text;
	// matching on it avoids depending on driver-internal error types.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "unique")
}
