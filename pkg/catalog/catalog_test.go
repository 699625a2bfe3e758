package catalog_test

import (
	"strings"
	"testing"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *template.WorkflowTemplate {
	t.Helper()

	tmpl, err := template.Load("testdata/fast_lease.yaml")
	require.NoError(t, err)

	return tmpl
}

func TestBuild_SampleTemplate(t *testing.T) {
	built, err := catalog.Build(loadSample(t))
	require.NoError(t, err)

	assert.Equal(t, "fast-lease-v1", built.WorkflowID())
	assert.Equal(t, "Risk manager", built.RoleLabel("RISK_MANAGER"))
	assert.Equal(t, "UNKNOWN", built.RoleLabel("UNKNOWN"))

	statuses := built.Statuses()
	require.Len(t, statuses, 12)
	assert.Equal(t, "NEW", statuses[0].Key)
	assert.Equal(t, "CANCELLED", statuses[11].Key)
	assert.Equal(t, "NEW", built.InitialStatus().Key)

	task, ok := built.TaskTemplate("aecb-check")
	require.True(t, ok)
	assert.Equal(t, "RISK_REVIEW", task.StatusKey)
	assert.Equal(t, "risk.approved", task.Task.GuardKey)
	assert.Len(t, built.TaskTemplatesByType("PAY_SUPPLIER"), 1)

	requirements := built.ExitRequirements("DOCS_COLLECT")
	require.Len(t, requirements, 1)
	assert.Equal(t, template.RequirementDocumentPresent, requirements[0].Type())
	assert.Empty(t, built.ExitRequirements("NEW"))

	fromRisk := built.TransitionsFrom("RISK_REVIEW")
	assert.Len(t, fromRisk, 2)

	transition, ok := built.Transition("RISK_REVIEW", "FINANCE_REVIEW")
	require.True(t, ok)
	assert.Equal(t, []string{"RISK_MANAGER"}, transition.ByRoles)

	_, ok = built.Transition("NEW", "ACTIVE")
	assert.False(t, ok)

	assert.Len(t, built.AvailableTransitions("RISK_REVIEW", "RISK_MANAGER"), 2)
	assert.Len(t, built.AvailableTransitions("RISK_REVIEW", "OP_MANAGER"), 0)

	assert.True(t, built.IsTerminal("ACTIVE"))
	assert.True(t, built.IsTerminal("CANCELLED"))
	assert.False(t, built.IsTerminal("NEW"))
	assert.False(t, built.IsTerminal("UNKNOWN"))
}

func TestBuild_Statuses_ReturnsCopy(t *testing.T) {
	built, err := catalog.Build(loadSample(t))
	require.NoError(t, err)

	statuses := built.Statuses()
	statuses[0] = nil

	assert.NotNil(t, built.Statuses()[0])
}

func TestBuild_IntegrityErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(tmpl *template.WorkflowTemplate)
		errorPart string
	}{
		{
			name: "kanban references undefined status",
			mutate: func(tmpl *template.WorkflowTemplate) {
				tmpl.KanbanOrder = append(tmpl.KanbanOrder, "ARCHIVED")
			},
			errorPart: "kanban_order references undefined status ARCHIVED",
		},
		{
			name: "transition to undefined status",
			mutate: func(tmpl *template.WorkflowTemplate) {
				tmpl.Transitions = append(tmpl.Transitions, template.Transition{From: "NEW", To: "LIMBO"})
			},
			errorPart: "ends at undefined status LIMBO",
		},
		{
			name: "transition from undefined status",
			mutate: func(tmpl *template.WorkflowTemplate) {
				tmpl.Transitions = append(tmpl.Transitions, template.Transition{From: "LIMBO", To: "NEW"})
			},
			errorPart: "starts at undefined status LIMBO",
		},
		{
			name: "duplicate task template across statuses",
			mutate: func(tmpl *template.WorkflowTemplate) {
				duplicate := &template.TaskCreateAction{
					ActionType: template.ActionTaskCreate,
					Task: template.TaskDefinition{
						TemplateID:   "prepare-quote",
						Type:         "PREPARE_QUOTE",
						Title:        "Again",
						AssigneeRole: "OP_MANAGER",
					},
				}
				status := tmpl.Statuses["VEHICLE_CHECK"]
				status.EntryActions = append(status.EntryActions, duplicate)
			},
			errorPart: "task template prepare-quote is declared in both OFFER_PREP and VEHICLE_CHECK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpl := loadSample(t)
			tt.mutate(tmpl)

			built, err := catalog.Build(tmpl)
			require.Error(t, err)
			assert.Nil(t, built)
			assert.True(t, template.IsParseError(err))
			assert.True(t, strings.Contains(err.Error(), tt.errorPart), err.Error())
		})
	}
}

func TestBuild_UnresolvedRolesAreWarnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(tmpl *template.WorkflowTemplate)
		warningPart string
	}{
		{
			name: "transition with undefined role",
			mutate: func(tmpl *template.WorkflowTemplate) {
				tmpl.Transitions = append(tmpl.Transitions, template.Transition{From: "NEW", To: "CANCELLED", ByRoles: []string{"CLIENT"}})
			},
			warningPart: "allows undefined role CLIENT",
		},
		{
			name: "duplicate role",
			mutate: func(tmpl *template.WorkflowTemplate) {
				duplicate := tmpl.Roles[0]
				duplicate.Name = "Operations lead"
				tmpl.Roles = append(tmpl.Roles, duplicate)
			},
			warningPart: "role OP_MANAGER is declared twice",
		},
		{
			name: "task assigned to undefined role",
			mutate: func(tmpl *template.WorkflowTemplate) {
				status := tmpl.Statuses["NEW"]
				status.EntryActions = append(status.EntryActions, &template.TaskCreateAction{
					ActionType: template.ActionTaskCreate,
					Task: template.TaskDefinition{
						TemplateID:   "call-client",
						Type:         "CALL_CLIENT",
						Title:        "Call the client",
						AssigneeRole: "CALL_CENTER",
					},
				})
			},
			warningPart: "assigned to undefined role CALL_CENTER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpl := loadSample(t)
			tt.mutate(tmpl)

			built, err := catalog.Build(tmpl)
			require.NoError(t, err)
			require.NotNil(t, built)

			warnings := built.Warnings()
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0], tt.warningPart)
		})
	}
}

func TestBuild_DuplicateRoleLastWins(t *testing.T) {
	tmpl := loadSample(t)

	duplicate := tmpl.Roles[0]
	duplicate.Name = "Operations lead"
	tmpl.Roles = append(tmpl.Roles, duplicate)

	built, err := catalog.Build(tmpl)
	require.NoError(t, err)

	assert.Equal(t, "Operations lead", built.RoleLabel("OP_MANAGER"))
}

func TestBuild_SampleTemplateHasNoWarnings(t *testing.T) {
	built, err := catalog.Build(loadSample(t))
	require.NoError(t, err)

	assert.Empty(t, built.Warnings())
}

func TestBuild_NilTemplate(t *testing.T) {
	_, err := catalog.Build(nil)
	assert.True(t, template.IsParseError(err))
}
