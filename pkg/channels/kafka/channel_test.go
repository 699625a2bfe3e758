package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, "dealflow", nil)
	assert.Error(t, err)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	msg.Metadata.Set(events.EventMetadataKey, "deal-1")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "deal-1", key)
}
