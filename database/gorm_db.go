package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/faceattend/models"
)

// GormOptions tunes the GORM connection.
type GormOptions struct {
	LogLevel logger.LogLevel
}

// ParseLogLevel maps silent, error, warn or info to a GORM log level.
func ParseLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func dialector(driver Driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(driver Driver, dsn string, opts GormOptions) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database using GORM: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	if driver == DriverSQLite {
		// enable write-ahead logging so readers do not block the recorder
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			log.Printf("warning: failed to set WAL mode: %v", err)
		}
		if err := db.Exec("PRAGMA busy_timeout=5000;").Error; err != nil {
			log.Printf("warning: failed to set busy timeout: %v", err)
		}
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully using", driver)
	return db, nil
}

// schemaStatements holds the exact table layout per dialect. students and
// attendance keep the column names and types of the original attendance.db.
func schemaStatements(driver Driver) []string {
	switch driver {
	case DriverMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS students (id BIGINT PRIMARY KEY, name TEXT, encoding LONGBLOB)`,
			`CREATE TABLE IF NOT EXISTS attendance (id BIGINT, name TEXT, date VARCHAR(10), time VARCHAR(8), INDEX idx_attendance_id_date (id, date))`,
		}
	case DriverPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS students (id BIGINT PRIMARY KEY, name TEXT, encoding BYTEA)`,
			`CREATE TABLE IF NOT EXISTS attendance (id BIGINT, name TEXT, date TEXT, time TEXT)`,
			`CREATE INDEX IF NOT EXISTS idx_attendance_id_date ON attendance (id, date)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS students (id INTEGER PRIMARY KEY, name TEXT, encoding BLOB)`,
			`CREATE TABLE IF NOT EXISTS attendance (id INTEGER, name TEXT, date TEXT, time TEXT)`,
			`CREATE INDEX IF NOT EXISTS idx_attendance_id_date ON attendance (id, date)`,
		}
	}
}

// EnsureSchema creates the students and attendance tables with their fixed
// layout and migrates the enrollment audit table.
func EnsureSchema(db *gorm.DB, driver Driver) error {
	for _, stmt := range schemaStatements(driver) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
		}
	}
	if err := db.AutoMigrate(&models.Enrollment{}); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}
