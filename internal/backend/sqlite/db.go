package sqlite

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/objectagent/internal/metadata"
)

// Open creates or opens a SQLite database at path. Use ":memory:" for a
// throwaway database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite allows a single writer, so the pool is limited to one connection.
// Agent queries read their rows eagerly and never hold it between calls.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %q", pragma)
		}
	}
	return nil
}

// CreateSchema creates a table for every registered class that does not
// have one yet. It never alters existing tables.
//
// A single integer identifier becomes the INTEGER PRIMARY KEY (an alias of
// the rowid, so inserts without an id are numbered by SQLite). Multi-field
// identifiers become a composite primary key.
func CreateSchema(db *sql.DB, classes *metadata.Registry) error {
	for _, class := range classes.Classes() {
		stmt := createTableSQL(class)
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "create table for %q", class.Name())
		}
	}
	return nil
}

func createTableSQL(class *metadata.Class) string {
	ids := class.IDFieldNames()
	var cols []string
	for _, f := range columns(class) {
		col := quoteIdent(f.Name) + " " + columnType(f.Type)
		if len(ids) == 1 && f.ID {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	if len(ids) > 1 {
		quoted := make([]string, len(ids))
		for i, id := range ids {
			quoted[i] = quoteIdent(id)
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(class.Table()), strings.Join(cols, ", "))
}

var timeType = reflect.TypeOf(time.Time{})

// columns returns the fields stored as table columns. Parent fields and
// fields of kinds SQLite cannot hold are not stored.
func columns(class *metadata.Class) []metadata.Field {
	var out []metadata.Field
	for _, f := range class.Fields() {
		if f.Parent || columnType(f.Type) == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func columnType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return "TIMESTAMP"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "BLOB"
		}
	}
	return ""
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
