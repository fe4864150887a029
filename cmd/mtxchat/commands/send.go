// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"strings"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
)

func sendCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:    "send",
		Summary: "Send a text message to the room",
		Usage:   "mtxchat send <text>...",
		Examples: []cli.Example{
			{Command: "mtxchat send hello from the terminal"},
		},
		Run: func(ctx context.Context, args []string) error {
			body := strings.Join(args, " ")
			if strings.TrimSpace(body) == "" {
				return cli.Validation("message text is required")
			}

			s, err := app.open("send", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := ensureLoggedIn(ctx, s.engine); err != nil {
				return classify(err)
			}
			eventID, err := s.engine.Send(ctx, body)
			if err != nil {
				return classify(err)
			}
			app.printf("%s\n", eventID)
			return nil
		},
	}
}
