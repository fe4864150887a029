// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
)

type statusParams struct {
	cli.JSONOutput
}

func statusCommand(app *App) *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show the stored session and room",
		Description: `Show the session state derived from the store. No network calls are
made, so the state is "logged_out" until a command logs in. Secrets are
never printed; only whether they are stored.`,
		Usage:  "mtxchat status [--json]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			s, err := app.open("status", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			status := s.engine.Status()
			if done, err := params.EmitJSON(app.Stdout, status); done {
				return err
			}

			tw := tabwriter.NewWriter(app.Stdout, 2, 0, 2, ' ', 0)
			row := func(label string, value any) { fmt.Fprintf(tw, "%s:\t%v\n", label, value) }
			row("State", status.State)
			row("User", orNone(status.UserID))
			row("Server", status.Server)
			row("Room", orNone(status.RoomAlias))
			row("Room ID", orNone(status.RoomID))
			row("Filter", orNone(status.Filter))
			row("Cursor", orNone(status.Cursor))
			row("Token stored", status.HasToken)
			row("Password stored", status.HasPassword)
			if status.LastCycle != nil {
				row("Last cycle", status.LastCycle.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
