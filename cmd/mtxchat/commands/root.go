// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
)

// Root returns the mtxchat command tree bound to app.
func Root(app *App) *cli.Command {
	return &cli.Command{
		Name:    "mtxchat",
		Summary: "Matrix chat session and sync client",
		Description: `mtxchat keeps one Matrix login and one room selection in a local
key/value store and follows the room with a long-poll /sync loop.

Global flags (before the command):
  --config path   YAML configuration file (default: $MTXCHAT_CONFIG, or built-in defaults)
  --verbose       debug logging`,
		Usage:      "mtxchat [--config path] [--verbose] <command> [flags]",
		HelpOutput: app.Stderr,
		Subcommands: []*cli.Command{
			loginCommand(app),
			logoutCommand(app),
			credentialsCommand(app),
			roomCommand(app),
			configCommand(app),
			listenCommand(app),
			sendCommand(app),
			statusCommand(app),
		},
	}
}

// Execute parses the global flags, then dispatches the rest of args.
func Execute(ctx context.Context, app *App, args []string) error {
	globals := pflag.NewFlagSet("mtxchat", pflag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.StringVar(&app.ConfigPath, "config", app.ConfigPath, "YAML configuration file")
	globals.BoolVarP(&app.Verbose, "verbose", "v", app.Verbose, "debug logging")

	// --help must reach the command tree rather than pflag.
	var rest []string
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		rest = args
	} else {
		var err error
		rest, err = cli.ParseFlags(globals, args)
		if err != nil {
			return err
		}
	}
	return Root(app).Execute(ctx, rest)
}
