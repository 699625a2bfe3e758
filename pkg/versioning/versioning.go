// Package versioning stores workflow templates as immutable, checksummed
// versions and keeps exactly one of them active per workflow.
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

var (
	// ErrWorkflowMismatch indicates the template declares a different workflow id than requested.
	ErrWorkflowMismatch = errors.New("template workflow id does not match")

	// ErrNoActiveVersion indicates a workflow has never been activated.
	ErrNoActiveVersion = errors.New("workflow has no active version")
)

// Checksum is the hex encoded SHA-256 of a template source.
func Checksum(source []byte) string {
	sum := sha256.Sum256(source)

	return hex.EncodeToString(sum[:])
}

type Service struct {
	repo     persistence.WorkflowVersionRepository
	registry *catalog.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo persistence.WorkflowVersionRepository, registry *catalog.Registry, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		logger:   logger.With("module", "versioning"),
		now:      time.Now,
	}
}

type EnsureActiveInput struct {
	// WorkflowID is optional; when set the template must declare the same id.
	WorkflowID string
	Source     []byte
	CreatedBy  string
}

// EnsureActive makes the given source the active version of its workflow,
// inserting it when no stored version has the same checksum.
func (s *Service) EnsureActive(ctx context.Context, input EnsureActiveInput) (*models.WorkflowVersion, error) {
	checksum := Checksum(input.Source)

	cat, err := s.registry.Get(checksum, input.Source)
	if err != nil {
		return nil, err
	}

	workflowID := cat.WorkflowID()
	if input.WorkflowID != "" && input.WorkflowID != workflowID {
		return nil, fmt.Errorf("%w: expected %s, template declares %s", ErrWorkflowMismatch, input.WorkflowID, workflowID)
	}

	active, err := s.repo.FindActive(ctx, workflowID)
	if err != nil && !persistence.IsVersionNotFound(err) {
		return nil, fmt.Errorf("failed to load active version: %w", err)
	}

	if active != nil && active.Checksum == checksum {
		return s.hydrate(active, cat), nil
	}

	activated, err := s.activateByChecksum(ctx, workflowID, checksum)
	if err != nil {
		return nil, err
	}

	if activated != nil {
		s.logger.InfoContext(ctx, "Re-activated stored workflow version", "workflow_id", workflowID, "version", activated.Version)

		return s.hydrate(activated, cat), nil
	}

	tmpl := cat.Template()

	inserted, err := s.repo.Insert(ctx, persistence.InsertVersionInput{
		WorkflowID: workflowID,
		Version:    s.defaultLabel(checksum),
		Title:      tmpl.Workflow.Title,
		SourceYAML: string(input.Source),
		Checksum:   checksum,
		IsActive:   true,
		CreatedBy:  input.CreatedBy,
	})
	if err != nil {
		if !errors.Is(err, persistence.ErrVersionAlreadyExists) {
			return nil, fmt.Errorf("failed to insert workflow version: %w", err)
		}

		// A concurrent writer stored the same checksum first.
		activated, err = s.activateByChecksum(ctx, workflowID, checksum)
		if err != nil {
			return nil, err
		}

		if activated == nil {
			return nil, fmt.Errorf("failed to insert workflow version: %w", persistence.ErrVersionAlreadyExists)
		}

		return s.hydrate(activated, cat), nil
	}

	s.logger.InfoContext(ctx, "Activated new workflow version", "workflow_id", workflowID, "version", inserted.Version, "checksum", checksum)

	return s.hydrate(inserted, cat), nil
}

// activateByChecksum marks the stored version with checksum active. It
// returns nil without error when no such version exists.
func (s *Service) activateByChecksum(ctx context.Context, workflowID, checksum string) (*models.WorkflowVersion, error) {
	versions, err := s.repo.List(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow versions: %w", err)
	}

	for _, version := range versions {
		if version.Checksum != checksum {
			continue
		}

		if version.IsActive {
			return version, nil
		}

		activated, err := s.repo.MarkActive(ctx, workflowID, version.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to activate workflow version: %w", err)
		}

		return activated, nil
	}

	return nil, nil
}

type CreateVersionInput struct {
	WorkflowID  string
	Source      []byte
	Version     string
	Title       string
	Description string
	CreatedBy   string
	Activate    bool
}

// CreateVersion stores a new version with an explicit label. Duplicate labels
// and duplicate sources are rejected with persistence.ErrVersionAlreadyExists.
func (s *Service) CreateVersion(ctx context.Context, input CreateVersionInput) (*models.WorkflowVersion, error) {
	checksum := Checksum(input.Source)

	cat, err := s.registry.Get(checksum, input.Source)
	if err != nil {
		return nil, err
	}

	workflowID := cat.WorkflowID()
	if input.WorkflowID != "" && input.WorkflowID != workflowID {
		return nil, fmt.Errorf("%w: expected %s, template declares %s", ErrWorkflowMismatch, input.WorkflowID, workflowID)
	}

	label := input.Version
	if label == "" {
		label = s.defaultLabel(checksum)
	}

	title := input.Title
	if title == "" {
		title = cat.Template().Workflow.Title
	}

	version, err := s.repo.Insert(ctx, persistence.InsertVersionInput{
		WorkflowID:  workflowID,
		Version:     label,
		Title:       title,
		Description: input.Description,
		SourceYAML:  string(input.Source),
		Checksum:    checksum,
		IsActive:    input.Activate,
		CreatedBy:   input.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	return s.hydrate(version, cat), nil
}

func (s *Service) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	return s.repo.List(ctx, workflowID)
}

// GetActiveVersion returns the active version with its parsed template.
func (s *Service) GetActiveVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	version, err := s.repo.FindActive(ctx, workflowID)
	if err != nil {
		if persistence.IsVersionNotFound(err) {
			return nil, fmt.Errorf("%s: %w", workflowID, ErrNoActiveVersion)
		}

		return nil, err
	}

	_, err = s.Catalog(ctx, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

func (s *Service) GetVersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	version, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_, err = s.Catalog(ctx, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

func (s *Service) Activate(ctx context.Context, workflowID, versionID string) (*models.WorkflowVersion, error) {
	version, err := s.repo.MarkActive(ctx, workflowID, versionID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Activated workflow version", "workflow_id", workflowID, "version", version.Version)

	_, err = s.Catalog(ctx, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

// Catalog returns the memoized catalog of a stored version and sets its Template.
func (s *Service) Catalog(_ context.Context, version *models.WorkflowVersion) (*catalog.Catalog, error) {
	cat, err := s.registry.Get(version.Checksum, []byte(version.SourceYAML))
	if err != nil {
		return nil, fmt.Errorf("stored workflow version %s is invalid: %w", version.ID, err)
	}

	s.hydrate(version, cat)

	return cat, nil
}

// ActiveCatalog resolves the active version of a workflow and its catalog.
func (s *Service) ActiveCatalog(ctx context.Context, workflowID string) (*models.WorkflowVersion, *catalog.Catalog, error) {
	version, err := s.GetActiveVersion(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	cat, err := s.Catalog(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	return version, cat, nil
}

// SyncFromCache activates the template currently served by cache.
func (s *Service) SyncFromCache(ctx context.Context, cache *catalog.Cache, createdBy string) (*models.WorkflowVersion, error) {
	entry, err := cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	s.registry.Put(Checksum(entry.Source), entry.Catalog)

	return s.EnsureActive(ctx, EnsureActiveInput{Source: entry.Source, CreatedBy: createdBy})
}

func (s *Service) hydrate(version *models.WorkflowVersion, cat *catalog.Catalog) *models.WorkflowVersion {
	version.Template = cat.Template()

	return version
}

func (s *Service) defaultLabel(checksum string) string {
	return s.now().UTC().Format("20060102150405") + "-" + checksum[:8]
}
