package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

const (
	MaxProjectNameLength = 100
	MaxDescriptionLength = 2000
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// ProjectService handles business logic for published projects.
type ProjectService struct {
	projects repository.ProjectRepository
	logger   *slog.Logger
}

func NewProjectService(projects repository.ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{projects: projects, logger: logger}
}

// Create validates and publishes a new project for the owner. A repo URL is
// optional, but when present it must be a parseable GitHub URL — issues on a
// project with an unparseable URL could never be mirrored.
func (s *ProjectService) Create(ctx context.Context, ownerID int64, name, description, repoURL string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "project name is required")
	}
	if len(name) > MaxProjectNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("project name must be %d characters or less", MaxProjectNameLength))
	}
	if len(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	repoURL = strings.TrimSpace(repoURL)
	if repoURL != "" {
		if _, _, ok := model.ParseRepoURL(repoURL); !ok {
			return nil, apperror.ValidationFailed("repoUrl",
				"repository URL must look like github.com/{owner}/{repo}")
		}
	}

	project := &model.Project{
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		RepoURL:     repoURL,
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		s.logger.Error("failed to create project",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/project: creating project: %w", err)
	}

	s.logger.Info("project published",
		slog.Int64("projectID", project.ID),
		slog.Int64("ownerID", ownerID),
		slog.String("name", project.Name),
	)
	return project, nil
}

// GetByID returns a project. Returns apperror.ErrNotFound if it doesn't exist.
func (s *ProjectService) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	return s.projects.GetProjectByID(ctx, id)
}

// List returns projects newest-first with pagination, limit clamped to a
// sane range.
func (s *ProjectService) List(ctx context.Context, limit, offset int) ([]model.Project, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	projects, err := s.projects.ListProjects(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list projects", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/project: listing projects: %w", err)
	}
	return projects, nil
}

// Delete removes a project. Only the owner may delete; issues filed against
// the project survive with their project reference cleared.
func (s *ProjectService) Delete(ctx context.Context, id, callerID int64) error {
	project, err := s.projects.GetProjectByID(ctx, id)
	if err != nil {
		return err
	}
	if project.OwnerID != callerID {
		return apperror.Forbidden("only the project owner can delete it")
	}

	if err := s.projects.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("service/project: deleting project %d: %w", id, err)
	}
	s.logger.Info("project deleted", slog.Int64("projectID", id))
	return nil
}
