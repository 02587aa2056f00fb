package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Project       ProjectConfig
	Admin         AdminConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds relational storage configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string // postgres or sqlite
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	Path             string // SQLite database file
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
	WriteTimeout     time.Duration // bound for writes detached from the request context
}

// SecurityConfig holds salt, token and password hashing settings
type SecurityConfig struct {
	DataDir     string
	SaltFile    string
	TokenTTL    time.Duration
	TokenHeader string
	BcryptCost  int
	Passthrough []string
	CacheSize   int           // roles kept by the permission cache
	CacheTTL    time.Duration // lifetime of a cached role
}

// AuditConfig holds configuration for the asynchronous audit trail
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// ProjectConfig describes the API in the index and healthcheck responses
type ProjectConfig struct {
	Name      string
	Address   string
	Author    string
	Version   string
	License   string
	Copyright string
}

// AdminConfig optionally seeds an initial administrator
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	return Load(ctx, "")
}

// Load reads envFile (when given) or .env, then builds the configuration from the environment
func Load(ctx context.Context, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Security: SecurityConfig{
			DataDir:     getEnv("DATA_DIR", "data"),
			SaltFile:    getEnv("SALT_FILE", "__SALT"),
			TokenTTL:    getEnvAsDuration("TOKEN_TTL", 7*24*time.Hour),
			TokenHeader: getEnv("TOKEN_HEADER", "X-Token"),
			BcryptCost:  getEnvAsInt("BCRYPT_COST", 10),
			Passthrough: getEnvAsList("AUTH_PASSTHROUGH", []string{"/api/auth", "/api/healthcheck", "/api/bootstrap"}),
			CacheSize:   getEnvAsInt("PERMISSION_CACHE_SIZE", 256),
			CacheTTL:    getEnvAsDuration("PERMISSION_CACHE_TTL", time.Minute),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		Project: ProjectConfig{
			Name:      getEnv("PROJECT_NAME", "YAPI"),
			Address:   getEnv("PROJECT_ADDR", "http://localhost:8080"),
			Author:    getEnv("PROJECT_AUTHOR", "YAPI contributors"),
			Version:   getEnv("PROJECT_VERSION", "0.0.2"),
			License:   getEnv("PROJECT_LICENSE", "MIT"),
			Copyright: getEnv("PROJECT_COPYRIGHT", "Copyright (c) YAPI contributors"),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case DriverSQLite:
		if c.Database.ConnectionString == "" && c.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required: set DB_PATH or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (want %s or %s)", c.Database.Driver, DriverPostgres, DriverSQLite)
	}

	if c.Security.SaltFile == "" {
		return fmt.Errorf("salt file name is required")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Security.TokenHeader == "" {
		return fmt.Errorf("token header is required")
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	if c.Admin.Username != "" && c.Admin.Password == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_USERNAME is set")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// SaltPath returns the location of the security salt file
func (c *SecurityConfig) SaltPath() string {
	if filepath.IsAbs(c.SaltFile) {
		return c.SaltFile
	}
	return filepath.Join(c.DataDir, c.SaltFile)
}

// DSN returns the driver connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", c.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.Driver == DriverSQLite {
		if c.Path != "" {
			return fmt.Sprintf("driver=sqlite path=%s", c.Path)
		}
		return "driver=sqlite path=<from DATABASE_URL>"
	}
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("driver=postgres host=%s port=%s database=%s", host, port, db)
		}
		return "driver=postgres host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("driver=postgres host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	driver := normalizeDriver(getEnv("DATABASE_DRIVER", DriverPostgres))
	cfg := DatabaseConfig{
		Driver:           driver,
		ConnectionString: getEnv("DATABASE_URL", ""),
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		WriteTimeout:     getEnvAsDuration("DB_WRITE_TIMEOUT", 10*time.Second),
	}

	if driver == DriverSQLite {
		cfg.Path = getEnv("DB_PATH", filepath.Join(getEnv("DATA_DIR", "data"), "yapi.db"))
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY between pooled connections.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		return cfg
	}

	if cfg.ConnectionString != "" {
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "yapi")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "yapi")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// normalizeDriver maps driver aliases onto the supported driver names
func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "pdo_sqlite":
		return DriverSQLite
	case "postgres", "postgresql", "pgsql", "pdo_pgsql":
		return DriverPostgres
	default:
		return driver
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
