package documents

import (
	"testing"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Normalize(t *testing.T) {
	t.Parallel()

	registry := DefaultRegistry()

	tests := []struct {
		raw      string
		expected string
	}{
		{"passport", "passport"},
		{" Passport ", "passport"},
		{"passport-copy", "passport"},
		{"EID", "emirates_id"},
		{"Emirates ID", "emirates_id"},
		{"driver license", "driving_license"},
		{"bank_statements", "bank_statement"},
		{"unknown_doc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, registry.Normalize(tt.raw))
		})
	}
}

func TestRegistry_Overrides(t *testing.T) {
	registry := NewRegistry(template.DocumentTypes{
		Registry: []template.DocumentTypeDefinition{{Value: "vehicle_registration", Label: "Mulkiya"}},
		Aliases:  []template.DocumentAlias{{Alias: "mulkiya", Target: "vehicle_registration"}},
	})

	assert.Equal(t, "vehicle_registration", registry.Normalize("Mulkiya"))
	assert.Equal(t, "Mulkiya", registry.Label("mulkiya"))
	assert.Equal(t, "Passport", registry.Label("passport"))
	assert.Equal(t, "custom", registry.Label("custom"))
}

func TestRegistry_Evaluate(t *testing.T) {
	registry := DefaultRegistry()

	docs := []*models.Document{
		{ID: "1", DocumentType: "passport_copy"},
		{ID: "2", DocumentType: "eid"},
		{ID: "3", DocumentType: "something-else"},
	}

	checklist := registry.Evaluate([]string{"passport", "emirates_id"}, docs)
	assert.True(t, checklist.Fulfilled)
	require.Len(t, checklist.Items, 2)
	assert.Equal(t, "Passport", checklist.Items[0].Label)
	require.Len(t, checklist.Items[0].Matches, 1)
	assert.Equal(t, "1", checklist.Items[0].Matches[0].ID)

	partial := registry.Evaluate([]string{"passport", "driving_license", "mystery"}, docs)
	assert.False(t, partial.Fulfilled)
	assert.True(t, partial.Items[0].Fulfilled)
	assert.False(t, partial.Items[1].Fulfilled)
	assert.Empty(t, partial.Items[2].NormalizedType)
	assert.Equal(t, "mystery", partial.Items[2].Label)

	empty := registry.Evaluate(nil, docs)
	assert.False(t, empty.Fulfilled)
	assert.Empty(t, empty.Items)
}

func TestChecklistFromTaskPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  map[string]any
		expected []string
	}{
		{
			name: "fields take precedence",
			payload: map[string]any{
				"fields":   map[string]any{"checklist": []any{"passport"}},
				"defaults": map[string]any{"checklist": []any{"emirates_id"}},
			},
			expected: []string{"passport"},
		},
		{
			name:     "defaults fallback",
			payload:  map[string]any{"defaults": map[string]any{"checklist": []any{"passport", "bank_statements", " "}}},
			expected: []string{"passport"},
		},
		{
			name:     "json encoded",
			payload:  map[string]any{"fields": map[string]any{"checklist": `["emirates_id","proof_of_income"]`}},
			expected: []string{"emirates_id"},
		},
		{
			name:     "invalid json falls through",
			payload:  map[string]any{"fields": map[string]any{"checklist": "not json"}, "defaults": map[string]any{"checklist": []string{"passport"}}},
			expected: []string{"passport"},
		},
		{
			name:     "missing",
			payload:  map[string]any{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, ChecklistFromTaskPayload(tt.payload))
		})
	}
}
