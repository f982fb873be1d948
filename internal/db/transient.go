package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

// IsTransient reports whether an error is a serialization conflict or
// deadlock the store may resolve on retry. Everything else — constraint
// violations included — is permanent and must not be retried.
//
// Codes: Postgres 40001 (serialization_failure) and 40P01 (deadlock_detected),
// MSSQL 1205 (deadlock victim), MySQL 1213 (deadlock) and 1205 (lock wait
// timeout), SQLite SQLITE_BUSY/SQLITE_LOCKED surfaced as "database is locked"
// or "database table is locked" by the driver.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "40001" || pgErr.SQLState() == "40P01"
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 1205
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
