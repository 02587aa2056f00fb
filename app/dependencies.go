package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/yapi/config"
	"github.com/upb/yapi/handlers"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/internal/salt"
	"github.com/upb/yapi/middleware"
	"github.com/upb/yapi/repositories"
	"github.com/upb/yapi/repositories/sqldb"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/services/audit"
	"github.com/upb/yapi/services/bootstrap"
	"github.com/upb/yapi/services/permission"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sqldb.DB
	Logger *zap.Logger
	Salt   *salt.Salt

	// Unavailable holds the storage failure when the database could not be
	// opened at boot. Only the healthcheck is served in that case.
	Unavailable error

	// Repository Factory
	RepoFactory *sqldb.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Services
	RoleCache   *permission.RoleCache
	Resolver    *permission.Resolver
	Audit       *audit.AuditService
	Credentials *services.CredentialService
	Tokens      *services.TokenService
	Roles       *services.RoleService
	Groups      *services.GroupService
	Seeder      *bootstrap.Seeder

	// HTTP
	AuthMiddleware   *middleware.AuthMiddleware
	HealthHandler    *handlers.HealthHandler
	AuthHandler      *handlers.AuthHandler
	UserHandler      *handlers.UserHandler
	RoleHandler      *handlers.RoleHandler
	GroupHandler     *handlers.GroupHandler
	BootstrapHandler *handlers.BootstrapHandler

	stopCacheCleanup chan struct{}
}

// NewDependencies creates and wires up all application dependencies.
// A database that cannot be reached does not fail the boot: the returned
// Dependencies carries the cause in Unavailable instead.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	s, err := salt.Resolve(cfg.Security.SaltPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve security salt: %w", err)
	}
	deps.Salt = s

	if err := deps.initDatabase(ctx, cfg); err != nil {
		logger.Error("database unavailable, serving healthcheck only", zap.Error(err))
		deps.Unavailable = err
		deps.HealthHandler = handlers.NewHealthHandler(nil, cfg.Project, logger)
		return deps, nil
	}

	if err := deps.initServices(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens storage, applies migrations and builds the repositories
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := sqldb.NewRepositoryFactory(ctx, cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := factory.GetDB().RunMigrations(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initServices builds the domain services on top of the repositories
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.RoleCache = permission.NewRoleCache(cfg.Security.CacheSize, cfg.Security.CacheTTL)
	d.Resolver = permission.NewResolver(d.Repos, d.RoleCache, d.Logger)
	if cfg.Security.CacheTTL > 0 {
		d.stopCacheCleanup = make(chan struct{})
		go d.RoleCache.StartCleanupWorker(cfg.Security.CacheTTL, d.stopCacheCleanup)
	}

	var auditor services.Auditor
	if cfg.Audit.Enabled {
		d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.Config{
			BufferSize:   cfg.Audit.BufferSize,
			WorkerCount:  cfg.Audit.WorkerCount,
			WriteTimeout: cfg.Database.WriteTimeout,
		})
		if err := d.Audit.Start(); err != nil {
			return fmt.Errorf("failed to start audit service: %w", err)
		}
		auditor = d.Audit
	}

	hasher := auth.NewPasswordHasher(d.Salt, cfg.Security.BcryptCost)
	d.Credentials = services.NewCredentialService(d.TxManager, d.Repos, hasher, d.Resolver, auditor, d.Logger)
	d.Tokens = services.NewTokenService(d.TxManager, d.Repos, auth.NewTokenCodec(d.Salt), d.Credentials,
		d.Resolver, auditor, d.Logger, services.TokenConfig{
			TTL:          cfg.Security.TokenTTL,
			WriteTimeout: cfg.Database.WriteTimeout,
		})
	d.Roles = services.NewRoleService(d.TxManager, d.Repos, d.Resolver, auditor, d.Logger)
	d.Groups = services.NewGroupService(d.Repos, auditor, d.Logger)
	d.Seeder = d.NewSeeder(bootstrap.DefaultCatalogue())

	d.Logger.Info("services initialized", zap.Bool("audit", cfg.Audit.Enabled))
	return nil
}

// initHTTP builds the middleware and handlers
func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Resolver, middleware.GatewayConfig{
		Header:      cfg.Security.TokenHeader,
		Protected:   "/api",
		Passthrough: cfg.Security.Passthrough,
	}, d.Logger)

	d.HealthHandler = handlers.NewHealthHandler(d.DB, cfg.Project, d.Logger).
		Report("database_pool", d.poolStats).
		Report("permission_cache", func() interface{} { return d.RoleCache.Stats() })
	if audit := d.Audit; audit != nil {
		d.HealthHandler.Report("audit", func() interface{} { return audit.GetStats() })
	}
	d.AuthHandler = handlers.NewAuthHandler(d.Tokens, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Credentials, d.Logger)
	d.RoleHandler = handlers.NewRoleHandler(d.Roles, d.Logger)
	d.GroupHandler = handlers.NewGroupHandler(d.Groups, d.Logger)
	d.BootstrapHandler = handlers.NewBootstrapHandler(d.Seeder, d.Logger)
}

// NewSeeder returns a seeder writing catalogue and the configured administrator
func (d *Dependencies) NewSeeder(catalogue *bootstrap.Catalogue) *bootstrap.Seeder {
	return bootstrap.NewSeeder(d.TxManager, d.Repos, d.Credentials, catalogue, d.Config.Admin, d.Logger)
}

func (d *Dependencies) poolStats() interface{} {
	stats := d.DB.Stats()
	return map[string]int{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"in_use":   stats.InUse,
		"idle":     stats.Idle,
	}
}

func (d *Dependencies) stopCache() {
	if d.stopCacheCleanup != nil {
		close(d.stopCacheCleanup)
		d.stopCacheCleanup = nil
	}
}

// HealthCheck reports whether storage answers
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.DB == nil {
		if d.Unavailable != nil {
			return d.Unavailable
		}
		return errors.New("database not initialized")
	}
	return d.DB.HealthCheck(ctx)
}

func (d *Dependencies) closeDatabase() {
	d.stopCache()
	if d.Audit != nil {
		_ = d.Audit.Stop(time.Second)
		d.Audit = nil
	}
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
		d.RepoFactory = nil
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	d.stopCache()

	// Drain the audit trail before the pool goes away
	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
