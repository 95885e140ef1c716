package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

// Driver names a supported storage backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StatementBuilder returns a squirrel builder with the placeholder format of driver.
func StatementBuilder(driver Driver) sq.StatementBuilderType {
	if driver == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// DB bundles the GORM handle used by repositories with the raw connection
// used for streaming queries.
type DB struct {
	Gorm    *gorm.DB
	SQL     *sql.DB
	Driver  Driver
	Builder sq.StatementBuilderType
}

// Open connects, applies the schema and returns a ready DB.
func Open(driver Driver, dsn string, opts GormOptions) (*DB, error) {
	gdb, err := InitGormDB(driver, dsn, opts)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	if err := EnsureSchema(gdb, driver); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Printf("database: %s storage ready", driver)
	return &DB{Gorm: gdb, SQL: sqlDB, Driver: driver, Builder: StatementBuilder(driver)}, nil
}

func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// SQLiteDSN adds the connection parameters every sqlite connection in the
// pool needs. A path that already carries a query string is returned as is.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}
