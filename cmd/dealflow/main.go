package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/dealflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "dealflow",
		Usage:                 "Run leasing deals through their workflow",
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			queuesCommand(),
			resyncCommand(),
			versionsCommand(),
			templateCommand(),
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
