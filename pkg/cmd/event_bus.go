package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/dealflow/pkg/channels/gochannel"
	"github.com/dukex/dealflow/pkg/channels/kafka"
	"github.com/dukex/dealflow/pkg/eventbus"
)

const serviceName = "dealflow"

// NewEventBus builds the domain event bus. gochannel keeps events in process;
// kafka needs at least one broker.
func NewEventBus(provider string, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, kafka.ParseBrokers(brokers))
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
