package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/documents"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/template"
)

// GuardContext is the data exit requirements and guards are evaluated
// against. Documents and Tasks are only loaded when a requirement needs them.
type GuardContext struct {
	Fields    map[string]any
	Documents []*models.Document
	Tasks     []*models.Task
}

// Field resolves a dotted path in the merged fields.
func (g *GuardContext) Field(path string) any {
	return template.ResolvePath(g.Fields, path)
}

func (s *Service) assembleGuardContext(
	ctx context.Context,
	deal *models.Deal,
	override map[string]any,
	requirements []template.Requirement,
) (*GuardContext, error) {
	guard := &GuardContext{Fields: models.MergePayload(deal.Payload, override)}

	var needDocuments, needTasks bool

	for _, requirement := range requirements {
		switch requirement.(type) {
		case *template.DocumentRequirement:
			needDocuments = true
		case *template.TaskRequirement:
			needTasks = true
		}
	}

	if needDocuments {
		docs, err := s.persistence.DocumentRepository().ListByDeal(ctx, deal.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load documents for deal %s: %w", deal.ID, err)
		}

		guard.Documents = docs
	}

	if needTasks {
		tasks, err := s.persistence.TaskRepository().ListByDeal(ctx, deal.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks for deal %s: %w", deal.ID, err)
		}

		guard.Tasks = tasks
	}

	return guard, nil
}

// checkRequirements returns every unmet requirement; nil means all are met.
func checkRequirements(cat *catalog.Catalog, guard *GuardContext, requirements []template.Requirement) []FailedRequirement {
	var failed []FailedRequirement

	for _, requirement := range requirements {
		if requirementMet(cat, guard, requirement) {
			continue
		}

		failed = append(failed, FailedRequirement{
			Key:     requirement.Key(),
			Type:    string(requirement.Type()),
			Message: requirement.Message(),
		})
	}

	return failed
}

func requirementMet(cat *catalog.Catalog, guard *GuardContext, requirement template.Requirement) bool {
	switch r := requirement.(type) {
	case *template.FieldRequirement:
		return r.Rule.Evaluate(guard.Field(r.Path))
	case *template.DocumentRequirement:
		registry := documents.NewRegistry(cat.Template().DocumentTypes)

		return registry.Evaluate(r.Documents, guard.Documents).Fulfilled
	case *template.TaskRequirement:
		return taskRequirementMet(cat, guard.Tasks, r)
	default:
		return false
	}
}

func taskRequirementMet(cat *catalog.Catalog, tasks []*models.Task, requirement *template.TaskRequirement) bool {
	guardKey := requirement.GuardKey
	if guardKey == "" && requirement.TaskTemplateID != "" {
		if taskTemplate, ok := cat.TaskTemplate(requirement.TaskTemplateID); ok {
			guardKey = taskGuardKey(taskTemplate.Task)
		}
	}

	for _, task := range tasks {
		if !task.IsDone() {
			continue
		}

		if requirement.TaskTemplateID != "" && task.TemplateID() == requirement.TaskTemplateID {
			return true
		}

		if guardKey != "" && task.GuardKey() == guardKey {
			return true
		}
	}

	return false
}

// checkGuards evaluates the field conditions of a transition edge.
func checkGuards(guard *GuardContext, conditions []template.Condition) []FailedRequirement {
	var failed []FailedRequirement

	for _, condition := range conditions {
		if condition.Rule.Evaluate(guard.Field(condition.Key)) {
			continue
		}

		failed = append(failed, FailedRequirement{
			Key:     condition.Key,
			Type:    "GUARD",
			Message: fmt.Sprintf("%s must satisfy %s", condition.Key, condition.Rule),
		})
	}

	return failed
}

// taskGuardKey is the payload flag a task definition sets on completion.
func taskGuardKey(definition template.TaskDefinition) string {
	if definition.GuardKey != "" {
		return definition.GuardKey
	}

	return models.DefaultGuardKey(definition.Type)
}

// defaultGuardFlags sets every boolean flag the workflow's guards and tasks
// depend on to false, so a fresh deal has explicit values for each of them.
func defaultGuardFlags(cat *catalog.Catalog) map[string]any {
	flags := map[string]any{}

	for _, status := range cat.Statuses() {
		for _, action := range status.EntryActions {
			task, ok := action.(*template.TaskCreateAction)
			if !ok {
				continue
			}

			if key := taskGuardKey(task.Task); key != "" {
				flags = models.MergePayload(flags, models.PathPatch(key, false))
			}
		}

		for _, transition := range cat.TransitionsFrom(status.Key) {
			for _, condition := range transition.Guards {
				if condition.Rule.Operator == template.OperatorEquals && condition.Rule.Expected == true {
					flags = models.MergePayload(flags, models.PathPatch(condition.Key, false))
				}
			}
		}
	}

	return flags
}
