package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/integrations"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/queues"
	"github.com/dukex/dealflow/pkg/versioning"
	"github.com/dukex/dealflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName      = "dealflow"
	defaultCreatedBy = "cli"
)

// application holds the services every subcommand works with.
type application struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	cache        *catalog.Cache
	versions     *versioning.Service
	workflow     *workflow.Service
	integrations *integrations.Service
	processor    *queues.Processor

	closers []func(ctx context.Context) error
}

func newApplication(ctx context.Context, command *cli.Command, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger}

	if err := app.init(ctx, command); err != nil {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.ErrorContext(ctx, "Failed to release resources", "error", closeErr)
		}

		return nil, err
	}

	return app, nil
}

func (a *application) init(ctx context.Context, command *cli.Command) error {
	tracer := otelhelper.NoopTracer()

	if command.Bool("otel-enabled") {
		var (
			shutdown otelhelper.ShutdownFunc
			err      error
		)

		tracer, shutdown, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		a.closers = append(a.closers, shutdown)
	}

	p, err := cmd.NewPersistence(ctx, a.logger, command.String("database-url"))
	if err != nil {
		return err
	}

	a.persistence = p
	a.closers = append(a.closers, p.Close)

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), a.logger)
	if err != nil {
		return err
	}

	a.eventBus = bus
	a.closers = append(a.closers, func(context.Context) error { return bus.Close() })

	processorOpts, err := a.processorOptions(ctx, command, tracer)
	if err != nil {
		return err
	}

	if path := command.String("template-path"); path != "" {
		a.cache = catalog.NewCache(catalog.NewFileSource(path), a.logger)
	}

	a.versions = versioning.NewService(p.WorkflowVersionRepository(), catalog.NewRegistry(), a.logger)
	a.workflow = workflow.NewService(p, a.versions, a.logger,
		workflow.WithPublisher(bus),
		workflow.WithTracer(tracer),
		workflow.WithResyncConcurrency(command.Int("resync-concurrency")),
	)
	a.integrations = integrations.NewService(p, a.versions, a.workflow, a.logger)
	a.processor = queues.NewProcessor(p, a.logger, processorOpts...)

	return nil
}

func (a *application) processorOptions(ctx context.Context, command *cli.Command, tracer trace.Tracer) ([]queues.Option, error) {
	timeout := command.Duration("webhook-timeout")

	notifiers, closeNotifiers, err := cmd.NewNotifiers(ctx, cmd.NotifierConfig{
		Names:          command.StringSlice("notifier"),
		TelegramURL:    command.String("telegram-url"),
		TelegramToken:  command.String("telegram-token"),
		TelegramChatID: command.String("telegram-chat-id"),
		RedisURL:       command.String("redis-url"),
		RedisPrefix:    command.String("redis-channel-prefix"),
		Timeout:        timeout,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, func(context.Context) error { return closeNotifiers() })

	directory, err := queues.ParseRecipients(command.StringSlice("notify-recipient"))
	if err != nil {
		return nil, err
	}

	return []queues.Option{
		queues.WithNotifiers(notifiers...),
		queues.WithDirectory(directory),
		queues.WithDispatcher(queues.NewDispatcher(&http.Client{Timeout: timeout})),
		queues.WithPublisher(a.eventBus),
		queues.WithTracer(tracer),
		queues.WithBatchSize(command.Int("queue-batch-size")),
		queues.WithDeliveryTimeout(timeout),
	}, nil
}

// syncTemplate registers the configured template as the active version of
// its workflow. It is a no-op without --template-path.
func (a *application) syncTemplate(ctx context.Context, createdBy string) error {
	if a.cache == nil {
		return nil
	}

	version, err := a.versions.SyncFromCache(ctx, a.cache, createdBy)
	if err != nil {
		return fmt.Errorf("failed to sync workflow version: %w", err)
	}

	a.logger.InfoContext(ctx, "Workflow version active",
		"workflow_id", version.WorkflowID,
		"version", version.Version,
		"checksum", version.Checksum,
	)

	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}

	a.closers = nil

	return errors.Join(errs...)
}
