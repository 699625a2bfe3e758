package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/dealflow/pkg/queues"
	"github.com/redis/go-redis/v9"
)

type NotifierConfig struct {
	Names []string

	TelegramURL    string
	TelegramToken  string
	TelegramChatID string

	RedisURL    string
	RedisPrefix string

	Timeout time.Duration
}

// NewNotifiers builds the configured notification channels. The returned
// close function releases their connections.
func NewNotifiers(ctx context.Context, config NotifierConfig, logger *slog.Logger) ([]queues.Notifier, func() error, error) {
	notifiers := make([]queues.Notifier, 0, len(config.Names))
	closers := make([]func() error, 0)

	closeAll := func() error {
		var errs []error
		for _, closeFn := range closers {
			errs = append(errs, closeFn())
		}

		return errors.Join(errs...)
	}

	client := &http.Client{Timeout: config.Timeout}

	for _, name := range config.Names {
		switch name {
		case "log":
			notifiers = append(notifiers, queues.NewLogNotifier(logger))
		case "telegram":
			if config.TelegramToken == "" {
				_ = closeAll()

				return nil, nil, errors.New("telegram notifier requires a bot token")
			}

			notifiers = append(notifiers, queues.NewTelegramNotifier(config.TelegramURL, config.TelegramToken, config.TelegramChatID, client))
		case "redis":
			options, err := redis.ParseURL(config.RedisURL)
			if err != nil {
				_ = closeAll()

				return nil, nil, fmt.Errorf("invalid redis url: %w", err)
			}

			rdb := redis.NewClient(options)

			if err := rdb.Ping(ctx).Err(); err != nil {
				_ = rdb.Close()
				_ = closeAll()

				return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
			}

			closers = append(closers, rdb.Close)
			notifiers = append(notifiers, queues.NewRedisNotifier(rdb, config.RedisPrefix))
		default:
			_ = closeAll()

			return nil, nil, fmt.Errorf("unsupported notifier: %s", name)
		}
	}

	if len(notifiers) == 0 {
		notifiers = append(notifiers, queues.NewLogNotifier(logger))
	}

	return notifiers, closeAll, nil
}
