package db

import (
	"fmt"
	"strings"
)

type pgDialect struct{}

func (pgDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }
func (pgDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

type mssqlDialect struct{}

func (mssqlDialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }
func (mssqlDialect) QuoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

type mysqlDialect struct{}

func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// dialectFor maps a database/sql driver name to its dialect. Unknown drivers
// get the SQLite dialect (? placeholders, double-quote idents), which is the
// closest thing to a portable default.
func dialectFor(driver string) Dialect {
	switch driver {
	case "sqlserver", "mssql":
		return mssqlDialect{}
	case "mysql":
		return mysqlDialect{}
	default:
		return sqliteDialect{}
	}
}
