package db

// Driver registrations for the portable adapter. The Postgres path goes
// through pgx directly and needs no database/sql driver.
import (
	"context"

	_ "github.com/go-sql-driver/mysql"  // driver name "mysql"
	_ "github.com/microsoft/go-mssqldb" // driver name "sqlserver"
	_ "modernc.org/sqlite"              // driver name "sqlite"
)

// Open dispatches on driver name: "postgres" uses the pgx adapter, anything
// else the portable database/sql adapter.
func Open(ctx context.Context, driver, dsn string) (DB, error) {
	if driver == "postgres" || driver == "pgx" {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQL(ctx, driver, dsn)
}
