package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/log"
	"github.com/dukex/dealflow/pkg/queues"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API and the queue scheduler",
		Flags:   serveFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Dealflow API")

			app, err := newApplication(ctx, command, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := app.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close resources", "error", err)
				}
			}()

			if err := app.syncTemplate(ctx, "serve"); err != nil {
				return err
			}

			if err := subscribeEvents(ctx, app.eventBus, log.WithModule("events")); err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return NewAPI(logger, app).Start(gctx, command.Int("port"), command.Duration("shutdown-timeout"))
			})

			if spec := command.String("queue-schedule"); spec != "" {
				g.Go(func() error {
					return runQueueScheduler(gctx, spec, app.processor, log.WithModule("scheduler"))
				})
			}

			return g.Wait()
		},
	}
}

// runQueueScheduler drains the queues on spec until ctx is done. A run still
// in progress when the next tick fires is skipped.
func runQueueScheduler(ctx context.Context, spec string, processor *queues.Processor, logger *slog.Logger) error {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := scheduler.AddFunc(spec, func() {
		result, err := processor.RunAll(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Queue run failed", "error", err)

			return
		}

		logger.DebugContext(ctx, "Queue run finished",
			"notifications", result.Notifications,
			"webhooks", result.Webhooks,
			"schedules", result.Schedules,
		)
	})
	if err != nil {
		return fmt.Errorf("invalid queue schedule %q: %w", spec, err)
	}

	scheduler.Start()
	logger.InfoContext(ctx, "Queue scheduler started", "schedule", spec)

	<-ctx.Done()
	<-scheduler.Stop().Done()

	return nil
}

var loggedEvents = []events.EventType{
	events.DealCreatedEvent,
	events.DealTransitionedEvent,
	events.DealResyncedEvent,
	events.DealCancelledEvent,
	events.TaskCompletedEvent,
	events.ScheduleFiredEvent,
}

// subscribeEvents logs every domain event published on the bus.
func subscribeEvents(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	for _, eventType := range loggedEvents {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Domain event", "type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
