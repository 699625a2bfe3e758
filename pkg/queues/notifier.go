package queues

import (
	"context"
	"log/slog"
)

// Notification is one message addressed to one role.
type Notification struct {
	DealID    string `json:"deal_id"`
	Kind      string `json:"kind"`
	Template  string `json:"template"`
	Role      string `json:"role"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message"`
}

// Notifier delivers notifications over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the log. It is the default channel
// for local runs.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("notifier", "log")}
}

const logNotifierName = "log"

func (n *LogNotifier) Name() string {
	return logNotifierName
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "Notification",
		"deal_id", notification.DealID,
		"role", notification.Role,
		"recipient", notification.Recipient,
		"template", notification.Template,
		"message", notification.Message,
	)

	return nil
}
