package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// sqliteIndexColumns maps unique index names to the column list SQLite
// reports in its constraint errors.
var sqliteIndexColumns = map[string]string{
	"ux_purchases_session_id":                  "purchases.session_id",
	"ux_cart_entries_user_composition_license": "cart_entries.user_id, cart_entries.composition_id, cart_entries.license_id",
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is set, only violations of that constraint (or index)
// match. Postgres errors are matched on SQLSTATE and constraint name. SQLite
// errors are matched on the index's column list. GORM's translated sentinel
// carries no constraint name and always matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && matchesConstraint(pgErr.ConstraintName, constraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesConstraint(pqErr.Constraint, constraintName)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "duplicate key value") {
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	const sqlitePrefix = "UNIQUE constraint failed: "
	idx := strings.Index(msg, sqlitePrefix)
	if idx < 0 {
		return false
	}
	if constraintName == "" {
		return true
	}
	columns := strings.TrimSpace(msg[idx+len(sqlitePrefix):])
	if want, ok := sqliteIndexColumns[constraintName]; ok {
		return columns == want
	}
	return strings.Contains(columns, constraintName)
}

func matchesConstraint(actual, want string) bool {
	return want == "" || actual == want
}

// IsNotFound reports whether err is GORM's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
