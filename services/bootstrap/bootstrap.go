// Package bootstrap seeds the default permission, role and group catalogue
// and the optional initial administrator.
package bootstrap

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/upb/yapi/config"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"github.com/upb/yapi/services"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// ErrAlreadyInitialized is returned by Initialize when roles already exist
var ErrAlreadyInitialized = services.NewDomainError(services.ErrorTypeConflict, services.CodeConflict,
	"base data already initialized", nil)

// PermissionSeed is one permission of the catalogue
type PermissionSeed struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// RoleSeed is one role of the catalogue and the permission slugs it grants
type RoleSeed struct {
	Name        string   `yaml:"name"`
	Slug        string   `yaml:"slug"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// GroupSeed is one group of the catalogue
type GroupSeed struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Protected   bool   `yaml:"protected"`
}

// AdminSeed selects the role and groups of the initial administrator
type AdminSeed struct {
	Role   string   `yaml:"role"`
	Groups []string `yaml:"groups"`
}

// Catalogue is the seed document
type Catalogue struct {
	Permissions []PermissionSeed `yaml:"permissions"`
	Roles       []RoleSeed       `yaml:"roles"`
	Groups      []GroupSeed      `yaml:"groups"`
	Admin       AdminSeed        `yaml:"admin"`
}

// ParseCatalogue decodes and checks a seed document
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}

	known := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		if !services.IsSlug(p.Slug) || p.Name == "" {
			return nil, fmt.Errorf("invalid permission %q", p.Slug)
		}
		known[p.Slug] = true
	}
	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if !services.IsSlug(r.Slug) || r.Name == "" {
			return nil, fmt.Errorf("invalid role %q", r.Slug)
		}
		for _, slug := range r.Permissions {
			if !known[slug] {
				return nil, fmt.Errorf("role %s grants unknown permission %q", r.Slug, slug)
			}
		}
		roles[r.Slug] = true
	}
	groups := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if !services.IsSlug(g.Slug) || g.Name == "" {
			return nil, fmt.Errorf("invalid group %q", g.Slug)
		}
		groups[g.Slug] = true
	}
	if c.Admin.Role != "" && !roles[c.Admin.Role] {
		return nil, fmt.Errorf("admin role %q is not in the catalogue", c.Admin.Role)
	}
	for _, slug := range c.Admin.Groups {
		if !groups[slug] {
			return nil, fmt.Errorf("admin group %q is not in the catalogue", slug)
		}
	}
	return &c, nil
}

// DefaultCatalogue returns the embedded catalogue
func DefaultCatalogue() *Catalogue {
	c, err := ParseCatalogue(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("embedded catalogue is invalid: %v", err))
	}
	return c
}

// LoadCatalogue reads a catalogue from path, or returns the embedded one when path is empty
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return DefaultCatalogue(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue %s: %w", path, err)
	}
	return ParseCatalogue(data)
}

// Result counts what a seed run created
type Result struct {
	Permissions int  `json:"permissions"`
	Roles       int  `json:"roles"`
	Grants      int  `json:"grants"`
	Groups      int  `json:"groups"`
	Admin       bool `json:"admin"`
}

// Seeder writes a catalogue into storage. Existing rows, matched by slug, are kept.
type Seeder struct {
	txMgr       repositories.TransactionManager
	repos       *repositories.Repositories
	credentials *services.CredentialService
	catalogue   *Catalogue
	admin       config.AdminConfig
	logger      *zap.Logger
}

// NewSeeder creates a seeder for catalogue and the configured administrator
func NewSeeder(
	txMgr repositories.TransactionManager,
	repos *repositories.Repositories,
	credentials *services.CredentialService,
	catalogue *Catalogue,
	admin config.AdminConfig,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		txMgr:       txMgr,
		repos:       repos,
		credentials: credentials,
		catalogue:   catalogue,
		admin:       admin,
		logger:      logger,
	}
}

// Initialize seeds an empty database and refuses once any role exists
func (s *Seeder) Initialize(ctx context.Context) (*Result, error) {
	roles, err := s.repos.Roles.List(ctx)
	if err != nil {
		return nil, services.FromRepository(err, nil, nil)
	}
	if len(roles) > 0 {
		return nil, ErrAlreadyInitialized
	}
	return s.Run(ctx)
}

// Run seeds the catalogue and then the administrator. It can be repeated safely.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		return s.seedCatalogue(ctx, result)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.seedAdmin(ctx)
	if err != nil {
		return nil, err
	}
	result.Admin = created

	s.logger.Info("bootstrap finished",
		zap.Int("permissions", result.Permissions),
		zap.Int("roles", result.Roles),
		zap.Int("grants", result.Grants),
		zap.Int("groups", result.Groups),
		zap.Bool("admin", result.Admin))
	return result, nil
}

func (s *Seeder) seedCatalogue(ctx context.Context, result *Result) error {
	now := time.Now().UTC()
	permIDs := make(map[string]*models.Permission, len(s.catalogue.Permissions))

	for _, seed := range s.catalogue.Permissions {
		perm, err := s.repos.Permissions.GetBySlug(ctx, seed.Slug)
		if errors.Is(err, repositories.ErrNotFound) {
			perm = models.NewPermission(seed.Name, seed.Slug)
			perm.CreatedAt, perm.UpdatedAt = now, now
			if err = s.repos.Permissions.Create(ctx, perm); err == nil {
				result.Permissions++
			}
		}
		if err != nil {
			return services.FromRepository(err, nil, services.ErrDuplicateSlug)
		}
		permIDs[seed.Slug] = perm
	}

	for _, seed := range s.catalogue.Roles {
		role, err := s.repos.Roles.GetBySlug(ctx, seed.Slug)
		if errors.Is(err, repositories.ErrNotFound) {
			role = models.NewRole(seed.Name, seed.Slug, seed.Description)
			role.CreatedAt, role.UpdatedAt = now, now
			if err = s.repos.Roles.Create(ctx, role); err == nil {
				result.Roles++
			}
		}
		if err != nil {
			return services.FromRepository(err, nil, services.ErrDuplicateSlug)
		}

		granted, err := s.repos.Roles.Permissions(ctx, role.ID)
		if err != nil {
			return services.FromRepository(err, nil, nil)
		}
		for _, slug := range seed.Permissions {
			perm := permIDs[slug]
			if _, ok := granted[perm.ID]; ok {
				continue
			}
			if err := s.repos.Roles.AddPermission(ctx, role.ID, perm.ID); err != nil {
				return services.FromRepository(err, nil, nil)
			}
			result.Grants++
		}
	}

	for _, seed := range s.catalogue.Groups {
		_, err := s.repos.Groups.GetBySlug(ctx, seed.Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return services.FromRepository(err, nil, nil)
		}
		group := models.NewGroup(seed.Name, seed.Slug, seed.Description, seed.Protected)
		group.Image = seed.Image
		group.CreatedAt, group.UpdatedAt = now, now
		if err := s.repos.Groups.Create(ctx, group); err != nil {
			return services.FromRepository(err, nil, services.ErrDuplicateSlug)
		}
		result.Groups++
	}
	return nil
}

// seedAdmin creates the configured administrator unless the username or email is taken
func (s *Seeder) seedAdmin(ctx context.Context) (bool, error) {
	if s.admin.Username == "" || s.admin.Password == "" || s.catalogue.Admin.Role == "" {
		return false, nil
	}
	email := s.admin.Email
	if email == "" {
		email = s.admin.Username + "@localhost.localdomain"
	}

	user, err := s.credentials.CreateUser(ctx, services.CreateUserInput{
		Username: s.admin.Username,
		Email:    email,
		Password: s.admin.Password,
		RoleSlug: s.catalogue.Admin.Role,
	})
	if errors.Is(err, services.ErrConflict) {
		s.logger.Info("administrator already exists", zap.String("username", s.admin.Username))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, slug := range s.catalogue.Admin.Groups {
		group, err := s.repos.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return true, services.FromRepository(err, services.ErrGroupNotFound, nil)
		}
		if err := s.credentials.AddToGroup(ctx, user.ID, group.ID); err != nil {
			return true, err
		}
	}

	s.logger.Info("administrator created",
		zap.String("username", user.Username),
		zap.String("role", s.catalogue.Admin.Role))
	return true, nil
}
