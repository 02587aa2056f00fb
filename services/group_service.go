package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// CreateGroupInput describes a new group
type CreateGroupInput struct {
	Name        string `validate:"required,max=128"`
	Slug        string `validate:"required,slug,max=128"`
	Description string `validate:"max=1024"`
	Image       string `validate:"omitempty,url,max=1024"`
	Protected   bool
}

// GroupService manages groups
type GroupService struct {
	repos   *repositories.Repositories
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewGroupService creates a new GroupService. A nil auditor discards audit entries.
func NewGroupService(repos *repositories.Repositories, auditor Auditor, logger *zap.Logger) *GroupService {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &GroupService{
		repos:   repos,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// ListGroups returns the live groups
func (s *GroupService) ListGroups(ctx context.Context) ([]*models.Group, error) {
	groups, err := s.repos.Groups.List(ctx)
	if err != nil {
		return nil, FromRepository(err, nil, nil)
	}
	return groups, nil
}

// CreateGroup creates a group
func (s *GroupService) CreateGroup(ctx context.Context, input CreateGroupInput) (*models.Group, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Slug = strings.TrimSpace(input.Slug)
	input.Image = strings.TrimSpace(input.Image)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	group := models.NewGroup(input.Name, input.Slug, strings.TrimSpace(input.Description), input.Protected)
	group.Image = input.Image
	group.CreatedAt = s.now().UTC()
	group.UpdatedAt = group.CreatedAt

	if err := s.repos.Groups.Create(ctx, group); err != nil {
		return nil, FromRepository(err, nil, ErrDuplicateSlug)
	}

	s.auditor.Record(auditEntry(ctx, models.AuditActionGroupCreated, "group").
		WithResource(group.ID).
		WithDetails(map[string]string{"slug": group.Slug}))
	return group, nil
}

// DeleteGroup soft-deletes a group. Protected groups fail with ErrProtectedGroup.
func (s *GroupService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	group, err := s.repos.Groups.GetByID(ctx, id)
	if err != nil {
		return FromRepository(err, ErrGroupNotFound, nil)
	}
	if group.Deleted {
		return ErrGroupNotFound
	}
	if group.Protected {
		return ErrProtectedGroup.Wrap(nil).WithDetail("slug", group.Slug)
	}

	group.Deleted = true
	group.UpdatedAt = s.now().UTC()
	if err := s.repos.Groups.Update(ctx, group); err != nil {
		return FromRepository(err, ErrGroupNotFound, nil)
	}

	s.logger.Info("group deleted", zap.String("group_id", id.String()), zap.String("slug", group.Slug))
	s.auditor.Record(auditEntry(ctx, models.AuditActionGroupDeleted, "group").WithResource(id))
	return nil
}
