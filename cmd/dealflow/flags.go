package main

import (
	"time"

	"github.com/dukex/dealflow/pkg/queues"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort        = 9091
	defaultDatabaseURL = "file://./data"
)

// globalFlags are shared by every subcommand.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (file://<dir> or postgres://...)",
			Value:   defaultDatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "template-path",
			Usage:   "Path to the workflow template YAML",
			Sources: cli.EnvVars("WORKFLOW_TEMPLATE_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringSliceFlag{
			Name:    "notifier",
			Usage:   "Notification channels (log, telegram, redis)",
			Value:   []string{"log"},
			Sources: cli.EnvVars("NOTIFIERS"),
		},
		&cli.StringFlag{
			Name:    "telegram-url",
			Usage:   "Telegram Bot API base URL",
			Value:   queues.DefaultTelegramURL,
			Sources: cli.EnvVars("TELEGRAM_URL"),
		},
		&cli.StringFlag{
			Name:    "telegram-token",
			Usage:   "Telegram bot token",
			Sources: cli.EnvVars("TELEGRAM_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "telegram-chat-id",
			Usage:   "Chat used when a recipient has no address",
			Sources: cli.EnvVars("TELEGRAM_CHAT_ID"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis notifier",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-channel-prefix",
			Usage:   "Prefix of the per-role Redis channels",
			Value:   queues.DefaultRedisChannelPrefix,
			Sources: cli.EnvVars("REDIS_CHANNEL_PREFIX"),
		},
		&cli.StringSliceFlag{
			Name:    "notify-recipient",
			Usage:   "Recipient address per role as ROLE=address, repeatable",
			Sources: cli.EnvVars("NOTIFY_RECIPIENTS"),
		},
		&cli.DurationFlag{
			Name:    "webhook-timeout",
			Usage:   "Timeout of a single outbound delivery",
			Value:   queues.DefaultDeliveryTimeout,
			Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "queue-batch-size",
			Usage:   "Entries claimed per queue run",
			Value:   queues.DefaultBatchSize,
			Sources: cli.EnvVars("QUEUE_BATCH_SIZE"),
		},
		&cli.IntFlag{
			Name:    "resync-concurrency",
			Usage:   "Deals resynced in parallel by a bulk resync",
			Value:   1,
			Sources: cli.EnvVars("RESYNC_CONCURRENCY"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "queue-schedule",
			Usage:   "Cron spec for draining the queues, empty disables",
			Value:   "@every 1m",
			Sources: cli.EnvVars("QUEUE_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "Grace period for in-flight requests on shutdown",
			Value:   10 * time.Second,
			Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
		},
	}
}
