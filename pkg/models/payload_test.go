package models_test

import (
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMergePayload(t *testing.T) {
	base := map[string]any{
		"risk":  map[string]any{"approved": false, "aecbScore": nil},
		"title": "deal",
	}
	patch := map[string]any{
		"risk":     map[string]any{"approved": true},
		"payments": map[string]any{"advanceReceived": true},
	}

	merged := models.MergePayload(base, patch)

	assert.Equal(t, map[string]any{
		"risk":     map[string]any{"approved": true, "aecbScore": nil},
		"payments": map[string]any{"advanceReceived": true},
		"title":    "deal",
	}, merged)

	// base is untouched
	assert.Equal(t, false, base["risk"].(map[string]any)["approved"])

	// patched maps are copies
	patch["payments"].(map[string]any)["advanceReceived"] = false
	assert.Equal(t, true, merged["payments"].(map[string]any)["advanceReceived"])
}

func TestMergePayload_ScalarReplacesMap(t *testing.T) {
	merged := models.MergePayload(map[string]any{"esign": map[string]any{"allSigned": true}}, map[string]any{"esign": nil})
	assert.Nil(t, merged["esign"])

	merged = models.MergePayload(nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, merged)
}

func TestPathPatch(t *testing.T) {
	assert.Equal(t, map[string]any{"docs": map[string]any{"required": map[string]any{"allUploaded": true}}},
		models.PathPatch("docs.required.allUploaded", true))
	assert.Equal(t, map[string]any{"quotationPrepared": true}, models.PathPatch("quotationPrepared", true))
}

func TestTask_GuardKey(t *testing.T) {
	tests := []struct {
		name     string
		task     models.Task
		expected string
	}{
		{
			name:     "explicit guard key",
			task:     models.Task{Type: "AECB_CHECK", Payload: map[string]any{"guard_key": "custom.flag"}},
			expected: "custom.flag",
		},
		{
			name:     "fallback by type",
			task:     models.Task{Type: "CONFIRM_CAR", Payload: map[string]any{}},
			expected: "tasks.confirmCar.completed",
		},
		{
			name:     "unknown type",
			task:     models.Task{Type: "CALL_CLIENT"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.task.GuardKey())
		})
	}
}

func TestQueueEntry_IsDue(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	assert.True(t, (&models.QueueEntry{}).IsDue(now))
	assert.True(t, (&models.QueueEntry{DueAt: &now}).IsDue(now))
	assert.False(t, (&models.QueueEntry{DueAt: &later}).IsDue(now))
	assert.True(t, models.QueueNotifications.Valid())
	assert.False(t, models.Queue("emails").Valid())
}
