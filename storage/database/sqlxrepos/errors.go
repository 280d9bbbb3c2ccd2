// Package sqlxrepos implements the core repositories on top of sqlx.
// Queries are written with "?" bindvars and rebound for the driver in use (postgres or sqlite3).
package sqlxrepos

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/manabi/core"
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation, whatever the driver.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == pqUniqueViolation
	case sqlite3.Error:
		return e.ExtendedCode == sqlite3.ErrConstraintUnique || e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func getExec(defaultExec core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return defaultExec
}

// orderBy builds an ORDER BY clause from ordering, keeping only the allowed fields.
// allowed maps API field names to columns.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// utc returns the time held by t in UTC; the zero time if t is null.
func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// validID reports whether id may be a primary key; malformed IDs cannot match any row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
