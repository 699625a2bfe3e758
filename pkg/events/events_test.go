package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(DealTransitionedEvent, "deal-1", "fast-lease-v1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, DealTransitionedEvent, base.Type)
	assert.Equal(t, "deal-1", base.DealID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestDealTransitioned_JSON(t *testing.T) {
	event := DealTransitioned{
		BaseEvent:         NewBaseEvent(DealTransitionedEvent, "deal-1", "fast-lease-v1"),
		From:              "NEW",
		To:                "OFFER_PREP",
		ActorRole:         "OP_MANAGER",
		WorkflowVersionID: "v-1",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "deal-1", decoded["deal_id"])
	assert.Equal(t, "NEW", decoded["from"])
	assert.Equal(t, "OFFER_PREP", decoded["to"])
	assert.Equal(t, "deal.transitioned", decoded["type"])
	assert.Equal(t, DealTransitionedEvent, event.GetType())
}
