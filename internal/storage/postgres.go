package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var postgresDialect = dialect{
	name:       "postgres",
	migration:  "postgres.sql",
	amountExpr: "amount::text",
	dateExpr:   "to_char(date, 'YYYY-MM-DD')",
	forUpdate:  " FOR UPDATE",
	returning:  true,
	sumInSQL:   true,
	numbered:   true,
}

// NewPostgresStorage connects to PostgreSQL with a lib/pq connection string
// and applies the schema.
func NewPostgresStorage(connStr string, logger *zap.Logger) (*SQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	logger.Info("Connected to PostgreSQL")
	return newSQLStorage(db, postgresDialect, logger)
}
