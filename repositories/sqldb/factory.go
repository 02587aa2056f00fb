package sqldb

import (
	"context"

	"github.com/upb/yapi/config"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the configured database
func NewRepositoryFactory(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositoryFactoryFromDB builds a factory over an already opened pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:       NewUserRepository(f.db, f.logger),
		Roles:       NewRoleRepository(f.db, f.logger),
		Permissions: NewPermissionRepository(f.db, f.logger),
		Groups:      NewGroupRepository(f.db, f.logger),
		Attributes:  NewAttributeRepository(f.db, f.logger),
		Tokens:      NewTokenRepository(f.db, f.logger),
		AuditLogs:   NewAuditRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
