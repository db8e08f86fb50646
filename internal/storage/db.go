package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"poen/internal/core"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

// dsn enables WAL, waits on a busy database and enforces foreign keys.
func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
}

var uniqueColumns = regexp.MustCompile(`(\w+)\.(\w+)`)

var tableEntities = map[string]string{
	"projects":         "project",
	"subprojects":      "subproject",
	"payments":         "payment",
	"categories":       "category",
	"project_ibans":    "iban",
	"bank_credentials": "credential",
}

// mapConstraint turns a uniqueness violation into a *core.ConflictError.
// values supplies the offending value per column name.
func mapConstraint(err error, values map[string]string) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	// Extended codes keep the primary code in the low byte.
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := se.Error()
	i := strings.Index(msg, "UNIQUE constraint failed:")
	if i < 0 {
		return err
	}
	msg = msg[i:]
	matches := uniqueColumns.FindAllStringSubmatch(msg, -1)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %v", core.ErrDuplicate, err)
	}
	last := matches[len(matches)-1]
	entity, ok := tableEntities[last[1]]
	if !ok {
		entity = last[1]
	}
	return &core.ConflictError{Entity: entity, Field: last[2], Value: values[last[2]]}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
