package template_test

import (
	"testing"

	"github.com/dukex/dealflow/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Evaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule     string
		value    any
		expected bool
	}{
		{"== true", true, true},
		{"== true", false, false},
		{"== true", nil, false},
		{"==true", "true", false},
		{"!= true", nil, true},
		{"== 700", float64(700), true},
		{"== 700", 700, true},
		{"!= 700", int64(650), true},
		{"== APPROVED", "APPROVED", true},
		{"== 'APPROVED'", "APPROVED", true},
		{"!= REJECTED", "APPROVED", true},
		{"== null", nil, true},
		{"== null", "x", false},
		{"truthy", "yes", true},
		{"truthy", "", false},
		{"truthy", 0, false},
		{"truthy", float64(710), true},
		{"truthy", map[string]any{}, true},
		{"falsy", nil, true},
		{"falsy", false, true},
		{"falsy", true, false},
	}

	for _, tt := range tests {
		rule, err := template.ParseRule(tt.rule)
		require.NoError(t, err, tt.rule)

		assert.Equal(t, tt.expected, rule.Evaluate(tt.value), "%s on %#v", tt.rule, tt.value)
	}
}

func TestParseRule_Unsupported(t *testing.T) {
	for _, raw := range []string{"", "> 3", "present", "TRUTHY"} {
		_, err := template.ParseRule(raw)
		assert.Error(t, err, raw)
	}
}

func TestResolvePath(t *testing.T) {
	data := map[string]any{
		"risk": map[string]any{"approved": true, "aecbScore": float64(710)},
		"flag": "x",
	}

	assert.Equal(t, true, template.ResolvePath(data, "risk.approved"))
	assert.Equal(t, float64(710), template.ResolvePath(data, "risk.aecbScore"))
	assert.Nil(t, template.ResolvePath(data, "risk.missing"))
	assert.Nil(t, template.ResolvePath(data, "flag.deeper"))
	assert.Nil(t, template.ResolvePath(data, ""))
}

func TestRender(t *testing.T) {
	message, err := template.Render("Deal {{.deal_id}} entered {{.status_title}}", map[string]any{
		"deal_id":      "d-1",
		"status_title": "Risk review",
	})
	require.NoError(t, err)
	assert.Equal(t, "Deal d-1 entered Risk review", message)

	plain, err := template.Render("no placeholders", nil)
	require.NoError(t, err)
	assert.Equal(t, "no placeholders", plain)

	_, err = template.Render("{{.broken", nil)
	assert.Error(t, err)
}
