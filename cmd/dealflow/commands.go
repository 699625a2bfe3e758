package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/log"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/template"
	"github.com/dukex/dealflow/pkg/versioning"
	cli "github.com/urfave/cli/v3"
)

var errNoTemplate = errors.New("no template given: pass --file or --template-path")

// withApplication builds the services before running action and releases
// them afterwards.
func withApplication(module string, action func(ctx context.Context, command *cli.Command, app *application) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		logger := log.WithModule(module)

		app, err := newApplication(ctx, command, logger)
		if err != nil {
			return err
		}

		defer func() {
			if err := app.Close(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to close resources", "error", err)
			}
		}()

		return action(ctx, command, app)
	}
}

func queueFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "queue",
		Aliases:  []string{"q"},
		Usage:    "Queue name (notifications, webhooks, schedules)",
		Required: required,
		Validator: func(value string) error {
			if value != "" && !models.Queue(value).Valid() {
				return fmt.Errorf("unknown queue: %s", value)
			}

			return nil
		},
	}
}

func queuesCommand() *cli.Command {
	return &cli.Command{
		Name:  "queues",
		Usage: "Process and inspect the outbound queues",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Drain pending entries once",
				Flags: []cli.Flag{queueFlag(false)},
				Action: withApplication("queues", func(ctx context.Context, command *cli.Command, app *application) error {
					if name := command.String("queue"); name != "" {
						result, err := app.processor.Run(ctx, models.Queue(name))
						if err != nil {
							return err
						}

						return printJSON(command, map[string]any{name: result})
					}

					result, err := app.processor.RunAll(ctx)
					if err != nil {
						return err
					}

					return printJSON(command, result)
				}),
			},
			{
				Name:  "failed",
				Usage: "List failed entries",
				Flags: []cli.Flag{
					queueFlag(true),
					&cli.IntFlag{Name: "limit", Usage: "Maximum entries to list, 0 for all"},
				},
				Action: withApplication("queues", func(ctx context.Context, command *cli.Command, app *application) error {
					entries, err := app.processor.ListFailed(ctx, models.Queue(command.String("queue")), command.Int("limit"))
					if err != nil {
						return err
					}

					return printJSON(command, entries)
				}),
			},
			{
				Name:  "requeue",
				Usage: "Put a failed entry back to pending",
				Flags: []cli.Flag{
					queueFlag(true),
					&cli.StringFlag{Name: "id", Usage: "Queue entry ID", Required: true},
				},
				Action: withApplication("queues", func(ctx context.Context, command *cli.Command, app *application) error {
					entry, err := app.processor.Requeue(ctx, models.Queue(command.String("queue")), command.String("id"))
					if err != nil {
						return err
					}

					return printJSON(command, entry)
				}),
			},
		},
	}
}

func resyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "resync",
		Usage: "Re-run entry actions of the current status for one deal or all deals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "deal", Usage: "Deal ID, all deals when empty"},
		},
		Action: withApplication("resync", func(ctx context.Context, command *cli.Command, app *application) error {
			if dealID := command.String("deal"); dealID != "" {
				result, err := app.workflow.ResyncDeal(ctx, dealID)
				if err != nil {
					return err
				}

				return printJSON(command, result)
			}

			result, err := app.workflow.ResyncAll(ctx)
			if err != nil {
				return err
			}

			if err := printJSON(command, result); err != nil {
				return err
			}

			if result.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d deals failed to resync", result.Failed, result.Total), 1)
			}

			return nil
		}),
	}
}

func versionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "Manage workflow template versions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List versions of a workflow",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "workflow-id", Usage: "Workflow ID", Required: true},
				},
				Action: withApplication("versions", func(ctx context.Context, command *cli.Command, app *application) error {
					versions, err := app.versions.ListVersions(ctx, command.String("workflow-id"))
					if err != nil {
						return err
					}

					return printJSON(command, versions)
				}),
			},
			{
				Name:  "sync",
				Usage: "Register a template as a workflow version",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Template file, defaults to --template-path"},
					&cli.StringFlag{Name: "version", Usage: "Version label; a new version is always created when set"},
					&cli.StringFlag{Name: "title", Usage: "Version title"},
					&cli.StringFlag{Name: "description", Usage: "Version description"},
					&cli.BoolFlag{Name: "activate", Usage: "Activate the created version", Value: true},
					&cli.StringFlag{Name: "created-by", Usage: "Author recorded on the version", Value: defaultCreatedBy},
				},
				Action: withApplication("versions", syncVersion),
			},
			{
				Name:  "activate",
				Usage: "Make a version the active one of its workflow",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Version ID", Required: true},
				},
				Action: withApplication("versions", func(ctx context.Context, command *cli.Command, app *application) error {
					version, err := app.versions.GetVersionByID(ctx, command.String("id"))
					if err != nil {
						return err
					}

					activated, err := app.versions.Activate(ctx, version.WorkflowID, version.ID)
					if err != nil {
						return err
					}

					return printJSON(command, activated)
				}),
			},
		},
	}
}

func syncVersion(ctx context.Context, command *cli.Command, app *application) error {
	createdBy := command.String("created-by")

	path := command.String("file")
	if path == "" && command.String("version") == "" {
		if app.cache == nil {
			return errNoTemplate
		}

		version, err := app.versions.SyncFromCache(ctx, app.cache, createdBy)
		if err != nil {
			return err
		}

		return printJSON(command, version)
	}

	if path == "" {
		path = command.String("template-path")
	}

	if path == "" {
		return errNoTemplate
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	var version *models.WorkflowVersion

	if label := command.String("version"); label != "" {
		version, err = app.versions.CreateVersion(ctx, versioning.CreateVersionInput{
			Source:      source,
			Version:     label,
			Title:       command.String("title"),
			Description: command.String("description"),
			CreatedBy:   createdBy,
			Activate:    command.Bool("activate"),
		})
	} else {
		version, err = app.versions.EnsureActive(ctx, versioning.EnsureActiveInput{
			Source:    source,
			CreatedBy: createdBy,
		})
	}

	if err != nil {
		return err
	}

	return printJSON(command, version)
}

type templateSummary struct {
	WorkflowID  string `json:"workflow_id"`
	Title       string `json:"title"`
	Checksum    string `json:"checksum"`
	Statuses    int    `json:"statuses"`
	Transitions int    `json:"transitions"`
	Roles       int    `json:"roles"`
	Initial     string `json:"initial_status"`
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Work with workflow template files",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Parse a template and check its graph",
				ArgsUsage: "[path]",
				Action: func(_ context.Context, command *cli.Command) error {
					path := command.Args().First()
					if path == "" {
						path = command.String("template-path")
					}

					if path == "" {
						return errNoTemplate
					}

					summary, err := validateTemplate(path)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					return printJSON(command, summary)
				},
			},
		},
	}
}

func validateTemplate(path string) (*templateSummary, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.Parse(source)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Build(tmpl)
	if err != nil {
		return nil, err
	}

	summary := &templateSummary{
		WorkflowID:  cat.WorkflowID(),
		Title:       tmpl.Workflow.Title,
		Checksum:    versioning.Checksum(source),
		Statuses:    len(tmpl.Statuses),
		Transitions: len(tmpl.Transitions),
		Roles:       len(tmpl.Roles),
	}

	if initial := cat.InitialStatus(); initial != nil {
		summary.Initial = initial.Key
	}

	return summary, nil
}
