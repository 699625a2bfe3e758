// Package main provides the dealflow server and operator commands.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/dealflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	app      *application
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, app *application) *API {
	return &API{
		logger:   logger,
		app:      app,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.app.persistence,
		a.app.workflow,
		a.app.integrations,
		a.app.processor,
		a.app.versions,
		a.app.cache,
		a.validate,
		a.logger,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dealflow API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int, shutdownTimeout time.Duration) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
