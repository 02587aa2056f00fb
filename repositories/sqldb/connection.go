package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/upb/yapi/config"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations
var migrationsFS embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// DB wraps the sql.DB connection pool together with the dialect it speaks
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// driverName maps a configured driver to the database/sql driver name
func driverName(driver string) (string, error) {
	switch driver {
	case config.DriverPostgres:
		return "postgres", nil
	case config.DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// NewDB opens a connection pool for the configured driver and verifies it
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

// Wrap adapts an existing pool, mainly for tests with sqlmock
func Wrap(db *sql.DB, driver string, logger *zap.Logger) *DB {
	return &DB{DB: db, driver: driver, logger: logger}
}

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", classify(err))
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", classify(err))
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// RunMigrations applies the embedded goose migrations of the active dialect
func (db *DB) RunMigrations(ctx context.Context) error {
	dialect := "postgres"
	if db.driver == config.DriverSQLite {
		dialect = "sqlite3"
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+db.driver)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	goose.SetBaseFS(sub)
	goose.SetLogger(&gooseLogger{logger: db.logger.Named("goose")})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db.logger.Info("running database migrations", zap.String("dialect", dialect))
	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db.logger.Info("migrations completed successfully")
	return nil
}

// gooseLogger routes goose output through zap
type gooseLogger struct {
	logger *zap.Logger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
