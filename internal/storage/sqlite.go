package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:       "sqlite",
	migration:  "sqlite.sql",
	amountExpr: "amount",
	dateExpr:   "date",
}

// NewSQLiteStorage opens (or creates) the database file at path
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	logger.Info("Opened SQLite database", zap.String("path", path))
	return newSQLStorage(db, sqliteDialect, logger)
}
