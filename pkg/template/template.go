// Package template parses declarative workflow templates and renders notification messages.
package template

import "slices"

// WorkflowTemplate is the parsed form of a workflow template source.
type WorkflowTemplate struct {
	Workflow      WorkflowInfo       `json:"workflow"`
	Roles         []RoleDefinition   `json:"roles"`
	KanbanOrder   []string           `json:"kanban_order"`
	Statuses      map[string]*Status `json:"statuses"`
	Transitions   []Transition       `json:"transitions"`
	Notifications Notifications      `json:"notifications"`
	Integrations  Integrations       `json:"integrations"`
	DocumentTypes DocumentTypes      `json:"document_types"`
}

type WorkflowInfo struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Entity    string `json:"entity" yaml:"entity"`
	OwnerRole string `json:"owner_role" yaml:"owner_role"`
	Timezone  string `json:"timezone" yaml:"timezone"`
}

type RoleDefinition struct {
	Code       string   `json:"code" yaml:"code"`
	Name       string   `json:"name" yaml:"name"`
	Categories []string `json:"categories" yaml:"categories"`
}

// Status is one node of the workflow graph.
type Status struct {
	Key              string         `json:"key"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Terminal         bool           `json:"terminal,omitempty"`
	EntryActions     []EntryAction  `json:"entry_actions,omitempty"`
	ExitRequirements []Requirement  `json:"exit_requirements,omitempty"`
	Webhooks         StatusWebhooks `json:"webhooks"`
}

type StatusWebhooks struct {
	OnEvent []WebhookEventRule `json:"on_event,omitempty"`
}

// WebhookEventRule maps an inbound integration event to a transition
// attempted while the deal sits in the owning status.
type WebhookEventRule struct {
	Event        string      `json:"event"`
	TransitionTo string      `json:"transition_to"`
	ActorRole    string      `json:"actor_role,omitempty"`
	Conditions   []Condition `json:"conditions,omitempty"`
}

// Transition is a directed edge of the workflow graph.
type Transition struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	ByRoles []string    `json:"by_roles,omitempty"`
	Guards  []Condition `json:"guards,omitempty"`
}

// AllowsRole reports whether role may perform the transition. An empty
// role list allows everyone.
func (t Transition) AllowsRole(role string) bool {
	return len(t.ByRoles) == 0 || slices.Contains(t.ByRoles, role)
}

// Condition is a field rule used by transition guards and webhook event rules.
type Condition struct {
	Key  string `json:"key"`
	Rule Rule   `json:"rule"`
}

type Notifications struct {
	Channels  []string          `json:"channels,omitempty" yaml:"channels"`
	Templates map[string]string `json:"templates,omitempty" yaml:"templates"`
}

// Integrations holds named outbound endpoints referenced by WEBHOOK actions.
type Integrations struct {
	Webhooks map[string]string `json:"webhooks,omitempty" yaml:"webhooks"`
}

// ResolveWebhook returns the URL registered under name, or name itself when
// it is not a registered endpoint.
func (i Integrations) ResolveWebhook(name string) string {
	if url, ok := i.Webhooks[name]; ok {
		return url
	}

	return name
}

type DocumentTypes struct {
	Registry []DocumentTypeDefinition `json:"registry,omitempty" yaml:"registry"`
	Aliases  []DocumentAlias          `json:"aliases,omitempty" yaml:"aliases"`
}

type DocumentTypeDefinition struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

type DocumentAlias struct {
	Alias  string `json:"alias" yaml:"alias"`
	Target string `json:"target" yaml:"target"`
}
