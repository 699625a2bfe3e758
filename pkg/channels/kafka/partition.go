package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/dealflow/pkg/events"
)

// partitionKey keeps every event of one deal on the same partition.
func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}
