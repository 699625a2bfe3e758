package models

import (
	"time"

	"github.com/dukex/dealflow/pkg/template"
)

// WorkflowVersion is an immutable, checksum-identified snapshot of a
// workflow template. At most one version per workflow is active.
type WorkflowVersion struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	Version     string `json:"version"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SourceYAML  string `json:"source_yaml"`
	Checksum    string `json:"checksum"`
	IsActive    bool   `json:"is_active"`
	CreatedBy   string `json:"created_by,omitempty"`

	// Template is hydrated from SourceYAML by the version service; storage
	// back ends leave it nil.
	Template *template.WorkflowTemplate `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
