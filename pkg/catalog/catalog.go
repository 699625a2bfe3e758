// Package catalog derives runtime lookup structures from a workflow template
// and caches them per template source.
package catalog

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dukex/dealflow/pkg/template"
)

// TaskTemplate is a task definition together with the status whose entry
// actions declare it.
type TaskTemplate struct {
	StatusKey string
	Task      template.TaskDefinition
}

// Catalog is the immutable, indexed view of one WorkflowTemplate. It is
// shared between goroutines and must not be modified after Build.
type Catalog struct {
	tmpl                *template.WorkflowTemplate
	rolesByCode         map[string]template.RoleDefinition
	roleLabels          map[string]string
	statusByKey         map[string]*template.Status
	statusesOrdered     []*template.Status
	taskTemplates       map[string]TaskTemplate
	taskTemplatesByType map[string][]TaskTemplate
	exitRequirements    map[string][]template.Requirement
	transitionsByFrom   map[string][]template.Transition

	warnings []string
}

// Build indexes tmpl and validates its referential integrity. Only undefined
// statuses and duplicate task templates fail the build, as *template.ParseError.
// Role references that do not resolve are kept and reported by Warnings.
func Build(tmpl *template.WorkflowTemplate) (*Catalog, error) {
	if tmpl == nil {
		return nil, template.Errorf("template is nil")
	}

	catalog := &Catalog{
		tmpl:                tmpl,
		rolesByCode:         make(map[string]template.RoleDefinition, len(tmpl.Roles)),
		roleLabels:          make(map[string]string, len(tmpl.Roles)),
		statusByKey:         make(map[string]*template.Status, len(tmpl.Statuses)),
		statusesOrdered:     make([]*template.Status, 0, len(tmpl.KanbanOrder)),
		taskTemplates:       make(map[string]TaskTemplate),
		taskTemplatesByType: make(map[string][]TaskTemplate),
		exitRequirements:    make(map[string][]template.Requirement, len(tmpl.Statuses)),
		transitionsByFrom:   make(map[string][]template.Transition),
	}

	for _, role := range tmpl.Roles {
		if _, exists := catalog.rolesByCode[role.Code]; exists {
			catalog.warnf("role %s is declared twice, the last declaration wins", role.Code)
		}

		catalog.rolesByCode[role.Code] = role
		catalog.roleLabels[role.Code] = role.Name
	}

	for key, status := range tmpl.Statuses {
		catalog.statusByKey[key] = status
	}

	for _, key := range tmpl.KanbanOrder {
		status, ok := catalog.statusByKey[key]
		if !ok {
			return nil, template.Errorf("kanban_order references undefined status %s", key)
		}

		catalog.statusesOrdered = append(catalog.statusesOrdered, status)
	}

	for _, key := range catalog.statusKeys() {
		status := catalog.statusByKey[key]

		err := catalog.indexTasks(status)
		if err != nil {
			return nil, err
		}

		catalog.exitRequirements[key] = status.ExitRequirements

		for _, rule := range status.Webhooks.OnEvent {
			if rule.ActorRole != "" && !catalog.hasRole(rule.ActorRole) {
				catalog.warnf("status %s: webhook event %s uses undefined role %s", key, rule.Event, rule.ActorRole)
			}
		}
	}

	for _, transition := range tmpl.Transitions {
		if _, ok := catalog.statusByKey[transition.From]; !ok {
			return nil, template.Errorf("transition %s -> %s starts at undefined status %s", transition.From, transition.To, transition.From)
		}

		if _, ok := catalog.statusByKey[transition.To]; !ok {
			return nil, template.Errorf("transition %s -> %s ends at undefined status %s", transition.From, transition.To, transition.To)
		}

		for _, role := range transition.ByRoles {
			if !catalog.hasRole(role) {
				catalog.warnf("transition %s -> %s allows undefined role %s", transition.From, transition.To, role)
			}
		}

		catalog.transitionsByFrom[transition.From] = append(catalog.transitionsByFrom[transition.From], transition)
	}

	return catalog, nil
}

func (c *Catalog) indexTasks(status *template.Status) error {
	for _, action := range status.EntryActions {
		taskAction, ok := action.(*template.TaskCreateAction)
		if !ok {
			continue
		}

		task := taskAction.Task
		if existing, exists := c.taskTemplates[task.TemplateID]; exists {
			return template.Errorf("task template %s is declared in both %s and %s", task.TemplateID, existing.StatusKey, status.Key)
		}

		if !c.hasRole(task.AssigneeRole) {
			c.warnf("task template %s is assigned to undefined role %s", task.TemplateID, task.AssigneeRole)
		}

		entry := TaskTemplate{StatusKey: status.Key, Task: task}
		c.taskTemplates[task.TemplateID] = entry
		c.taskTemplatesByType[task.Type] = append(c.taskTemplatesByType[task.Type], entry)
	}

	return nil
}

// statusKeys lists kanban statuses first, then the remaining ones sorted.
func (c *Catalog) statusKeys() []string {
	keys := make([]string, 0, len(c.statusByKey))
	for _, status := range c.statusesOrdered {
		keys = append(keys, status.Key)
	}

	rest := make([]string, 0)

	for key := range c.statusByKey {
		if !slices.Contains(keys, key) {
			rest = append(rest, key)
		}
	}

	sort.Strings(rest)

	return append(keys, rest...)
}

func (c *Catalog) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings lists the unresolved references found by Build.
func (c *Catalog) Warnings() []string {
	return slices.Clone(c.warnings)
}

func (c *Catalog) hasRole(code string) bool {
	_, ok := c.rolesByCode[code]

	return ok
}

func (c *Catalog) Template() *template.WorkflowTemplate {
	return c.tmpl
}

func (c *Catalog) WorkflowID() string {
	return c.tmpl.Workflow.ID
}

func (c *Catalog) Role(code string) (template.RoleDefinition, bool) {
	role, ok := c.rolesByCode[code]

	return role, ok
}

// RoleLabel returns the display name of a role, or the code itself.
func (c *Catalog) RoleLabel(code string) string {
	if label, ok := c.roleLabels[code]; ok {
		return label
	}

	return code
}

func (c *Catalog) Status(key string) (*template.Status, bool) {
	status, ok := c.statusByKey[key]

	return status, ok
}

// Statuses returns the statuses in kanban order.
func (c *Catalog) Statuses() []*template.Status {
	return slices.Clone(c.statusesOrdered)
}

// InitialStatus is the first kanban status.
func (c *Catalog) InitialStatus() *template.Status {
	if len(c.statusesOrdered) == 0 {
		return nil
	}

	return c.statusesOrdered[0]
}

func (c *Catalog) TaskTemplate(templateID string) (TaskTemplate, bool) {
	task, ok := c.taskTemplates[templateID]

	return task, ok
}

func (c *Catalog) TaskTemplatesByType(taskType string) []TaskTemplate {
	return slices.Clone(c.taskTemplatesByType[taskType])
}

func (c *Catalog) ExitRequirements(status string) []template.Requirement {
	return c.exitRequirements[status]
}

func (c *Catalog) TransitionsFrom(status string) []template.Transition {
	return slices.Clone(c.transitionsByFrom[status])
}

// Transition returns the edge from -> to, if declared.
func (c *Catalog) Transition(from, to string) (template.Transition, bool) {
	for _, transition := range c.transitionsByFrom[from] {
		if transition.To == to {
			return transition, true
		}
	}

	return template.Transition{}, false
}

// AvailableTransitions returns the edges leaving status that role may take.
func (c *Catalog) AvailableTransitions(status, role string) []template.Transition {
	available := make([]template.Transition, 0)

	for _, transition := range c.transitionsByFrom[status] {
		if transition.AllowsRole(role) {
			available = append(available, transition)
		}
	}

	return available
}

// IsTerminal reports whether status is marked terminal or has no outgoing edges.
func (c *Catalog) IsTerminal(status string) bool {
	definition, ok := c.statusByKey[status]
	if !ok {
		return false
	}

	return definition.Terminal || len(c.transitionsByFrom[status]) == 0
}
