package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver
	"github.com/rs/zerolog/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	_ "modernc.org/sqlite" // Register pure-Go sqlite driver

	"timebridge.service/internal/config"
	"timebridge.service/internal/ports/repository"
)

// NewInstrumentedConnection opens the configured database with OpenTelemetry
// instrumentation and returns the matching repository dialect.
func NewInstrumentedConnection(ctx context.Context, cfg config.Config) (*sql.DB, repository.Dialect, error) {
	driver := cfg.DBDriver
	dialect := repository.DialectSQLite
	system := semconv.DBSystemSqlite
	if driver == config.DriverPostgres {
		dialect = repository.DialectPostgres
		system = semconv.DBSystemPostgreSQL
	}

	// otelsql.Open wraps the driver to intercept queries and create spans
	db, err := otelsql.Open(driver, cfg.DSN(),
		otelsql.WithAttributes(system),
		otelsql.WithSQLCommenter(dialect == repository.DialectPostgres),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error opening database: %w", err)
	}

	if dialect == repository.DialectSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("error connecting to database: %w", err)
	}

	log.Info().Str("driver", driver).Msg("database connection ready")
	return db, dialect, nil
}
