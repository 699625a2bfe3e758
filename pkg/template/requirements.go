package template

import (
	"fmt"
	"strings"
)

type RequirementType string

const (
	RequirementField           RequirementType = "FIELD"
	RequirementDocumentPresent RequirementType = "DOCUMENT_PRESENT"
	RequirementTaskComplete    RequirementType = "TASK_COMPLETE"
)

// Requirement is an exit requirement of a status. The set of implementations
// is closed: FieldRequirement, DocumentRequirement and TaskRequirement.
type Requirement interface {
	Type() RequirementType
	Key() string
	Message() string
	requirement()
}

// FieldRequirement checks a dotted path of the guard fields against a rule.
type FieldRequirement struct {
	RequirementType RequirementType `json:"type"`
	Path            string          `json:"key"`
	Rule            Rule            `json:"rule"`
	FailureMessage  string          `json:"message,omitempty"`
}

func (r *FieldRequirement) Type() RequirementType { return RequirementField }
func (r *FieldRequirement) Key() string           { return r.Path }
func (r *FieldRequirement) requirement()          {}

func (r *FieldRequirement) Message() string {
	if r.FailureMessage != "" {
		return r.FailureMessage
	}

	return fmt.Sprintf("%s must satisfy %q", r.Path, r.Rule.String())
}

// DocumentRequirement needs at least one uploaded document for every listed type.
type DocumentRequirement struct {
	RequirementType RequirementType `json:"type"`
	Documents       []string        `json:"documents"`
	FailureMessage  string          `json:"message,omitempty"`
}

func (r *DocumentRequirement) Type() RequirementType { return RequirementDocumentPresent }
func (r *DocumentRequirement) Key() string           { return "documents:" + strings.Join(r.Documents, ",") }
func (r *DocumentRequirement) requirement()          {}

func (r *DocumentRequirement) Message() string {
	if r.FailureMessage != "" {
		return r.FailureMessage
	}

	return "required documents are missing: " + strings.Join(r.Documents, ", ")
}

// TaskRequirement needs a DONE task, matched either by guard key or by task template id.
type TaskRequirement struct {
	RequirementType RequirementType `json:"type"`
	GuardKey        string          `json:"guard_key,omitempty"`
	TaskTemplateID  string          `json:"task,omitempty"`
	FailureMessage  string          `json:"message,omitempty"`
}

func (r *TaskRequirement) Type() RequirementType { return RequirementTaskComplete }
func (r *TaskRequirement) requirement()          {}

func (r *TaskRequirement) Key() string {
	if r.GuardKey != "" {
		return r.GuardKey
	}

	return "task:" + r.TaskTemplateID
}

func (r *TaskRequirement) Message() string {
	if r.FailureMessage != "" {
		return r.FailureMessage
	}

	if r.TaskTemplateID != "" {
		return fmt.Sprintf("task %s must be completed", r.TaskTemplateID)
	}

	return fmt.Sprintf("task guarding %s must be completed", r.GuardKey)
}
