package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

const versionsCollection = "workflow_versions"

// WorkflowVersionRepository handles workflow version file operations.
type WorkflowVersionRepository struct {
	st *store
}

func (r *WorkflowVersionRepository) Insert(_ context.Context, input persistence.InsertVersionInput) (*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	versions, err := r.byWorkflow(input.WorkflowID)
	if err != nil {
		return nil, err
	}

	for _, existing := range versions {
		if existing.Version == input.Version || existing.Checksum == input.Checksum {
			return nil, &persistence.VersionError{Op: "Insert", WorkflowID: input.WorkflowID, VersionID: existing.ID, Err: persistence.ErrVersionAlreadyExists}
		}
	}

	version := &models.WorkflowVersion{
		ID:          uuid.NewString(),
		WorkflowID:  input.WorkflowID,
		Version:     input.Version,
		Title:       input.Title,
		Description: input.Description,
		SourceYAML:  input.SourceYAML,
		Checksum:    input.Checksum,
		IsActive:    input.IsActive,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	if version.IsActive {
		err = r.deactivate(versions, "")
		if err != nil {
			return nil, err
		}
	}

	err = r.st.write(versionsCollection, version.ID, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

func (r *WorkflowVersionRepository) List(_ context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	return r.byWorkflow(workflowID)
}

func (r *WorkflowVersionRepository) FindActive(_ context.Context, workflowID string) (*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	versions, err := r.byWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		if version.IsActive {
			return version, nil
		}
	}

	return nil, &persistence.VersionError{Op: "FindActive", WorkflowID: workflowID, Err: persistence.ErrVersionNotFound}
}

func (r *WorkflowVersionRepository) FindByVersion(_ context.Context, workflowID, label string) (*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	versions, err := r.byWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		if version.Version == label {
			return version, nil
		}
	}

	return nil, &persistence.VersionError{Op: "FindByVersion", WorkflowID: workflowID, VersionID: label, Err: persistence.ErrVersionNotFound}
}

func (r *WorkflowVersionRepository) FindByID(_ context.Context, id string) (*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	return r.get("FindByID", id)
}

func (r *WorkflowVersionRepository) MarkActive(_ context.Context, workflowID, versionID string) (*models.WorkflowVersion, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	version, err := r.get("MarkActive", versionID)
	if err != nil {
		return nil, err
	}

	if version.WorkflowID != workflowID {
		return nil, &persistence.VersionError{Op: "MarkActive", WorkflowID: workflowID, VersionID: versionID, Err: persistence.ErrVersionNotFound}
	}

	versions, err := r.byWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	err = r.deactivate(versions, versionID)
	if err != nil {
		return nil, err
	}

	version.IsActive = true

	err = r.st.write(versionsCollection, version.ID, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

func (r *WorkflowVersionRepository) get(op, id string) (*models.WorkflowVersion, error) {
	version, found, err := read[models.WorkflowVersion](r.st, versionsCollection, id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, &persistence.VersionError{Op: op, VersionID: id, Err: persistence.ErrVersionNotFound}
	}

	return version, nil
}

func (r *WorkflowVersionRepository) deactivate(versions []*models.WorkflowVersion, keepID string) error {
	for _, other := range versions {
		if !other.IsActive || other.ID == keepID {
			continue
		}

		other.IsActive = false

		err := r.st.write(versionsCollection, other.ID, other)
		if err != nil {
			return err
		}
	}

	return nil
}

// byWorkflow returns the versions of a workflow, newest first.
func (r *WorkflowVersionRepository) byWorkflow(workflowID string) ([]*models.WorkflowVersion, error) {
	all, err := readAll[models.WorkflowVersion](r.st, versionsCollection)
	if err != nil {
		return nil, err
	}

	versions := make([]*models.WorkflowVersion, 0, len(all))

	for _, version := range all {
		if version.WorkflowID == workflowID {
			versions = append(versions, version)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})

	return versions, nil
}
