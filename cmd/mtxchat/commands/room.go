// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
)

type roomParams struct {
	Name    string `flag:"name,n"   desc:"room alias localpart (prompt when omitted)"`
	Domain  string `flag:"domain,d" desc:"room alias domain (default: the user's domain)"`
	Resolve bool   `flag:"resolve"  desc:"log in and resolve the alias to a room ID now"`
}

func roomCommand(app *App) *cli.Command {
	var params roomParams

	return &cli.Command{
		Name:    "room",
		Summary: "Choose the room to follow",
		Description: `Select the room by alias (#name:domain). Changing the room clears the
stored room ID, filter and sync cursor together; they are recomputed on
the next listen.`,
		Usage: "mtxchat room [--name name] [--domain domain] [--resolve]",
		Examples: []cli.Example{
			{
				Description: "Follow #general:example.org",
				Command:     "mtxchat room --name general --domain example.org",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Name == "" && params.Domain != "" {
				return cli.Validation("--domain requires --name")
			}

			s, err := app.open("room", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if params.Name == "" {
				if err := s.engine.PromptRoom(ctx); err != nil {
					return classify(err)
				}
			} else if err := s.engine.SetRoom(ctx, params.Name, params.Domain); err != nil {
				return cli.Validation("%w", err)
			}

			if params.Resolve {
				if err := ensureLoggedIn(ctx, s.engine); err != nil {
					return classify(err)
				}
				if err := s.engine.ResolveRoom(ctx); err != nil {
					return classify(err)
				}
			}

			status := s.engine.Status()
			if status.RoomID != "" {
				app.printf("Room %s (%s)\n", status.RoomAlias, status.RoomID)
			} else {
				app.printf("Room %s\n", status.RoomAlias)
			}
			return nil
		},
	}
}
