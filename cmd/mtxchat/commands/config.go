// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

// sealedDisplay stands in for sealed values unless --reveal is given.
const sealedDisplay = "<sealed>"

type configGetParams struct {
	Reveal bool `flag:"reveal" desc:"print sealed values (password, token) in clear"`
}

type configListParams struct {
	cli.JSONOutput
	Reveal bool `flag:"reveal" desc:"print sealed values (password, token) in clear"`
}

type configEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Sealed bool   `json:"sealed"`
}

func configCommand(app *App) *cli.Command {
	var (
		getParams  configGetParams
		listParams configListParams
	)

	return &cli.Command{
		Name:    "config",
		Summary: "Read and write stored settings",
		Description: `Read and write the keys in the store. Keys starting with "__" are
internal and cannot be changed. Changing room_name or room_domain clears
the room ID, filter and sync cursor.`,
		Subcommands: []*cli.Command{
			{
				Name:    "get",
				Summary: "Print one value",
				Usage:   "mtxchat config get <key> [--reveal]",
				Params:  func() any { return &getParams },
				Run: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return cli.Validation("expected exactly one key")
					}
					s, err := app.open("config/get", nil)
					if err != nil {
						return err
					}
					defer s.Close()

					value, ok, err := s.engine.Get(args[0])
					if err != nil {
						return classify(err)
					}
					if !ok {
						// Like git config: a missing key is a quiet exit 1.
						return &cli.ExitError{Code: 1}
					}
					app.printf("%s\n", displayValue(args[0], value, getParams.Reveal))
					return nil
				},
			},
			{
				Name:    "set",
				Summary: "Store one value",
				Usage:   "mtxchat config set <key> <value>",
				Run: func(ctx context.Context, args []string) error {
					if len(args) != 2 {
						return cli.Validation("expected <key> <value>")
					}
					s, err := app.open("config/set", nil)
					if err != nil {
						return err
					}
					defer s.Close()
					return classify(s.engine.Set(args[0], args[1]))
				},
			},
			{
				Name:    "unset",
				Summary: "Remove one value",
				Usage:   "mtxchat config unset <key>",
				Run: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return cli.Validation("expected exactly one key")
					}
					s, err := app.open("config/unset", nil)
					if err != nil {
						return err
					}
					defer s.Close()
					return classify(s.engine.Unset(args[0]))
				},
			},
			{
				Name:    "list",
				Summary: "Print every stored key",
				Usage:   "mtxchat config list [--json] [--reveal]",
				Params:  func() any { return &listParams },
				Run: func(ctx context.Context, args []string) error {
					s, err := app.open("config/list", nil)
					if err != nil {
						return err
					}
					defer s.Close()

					keys, err := s.engine.Keys()
					if err != nil {
						return classify(err)
					}
					var entries []configEntry
					for _, key := range keys {
						value, ok, err := s.engine.Get(key)
						if err != nil {
							return classify(err)
						}
						if !ok {
							continue
						}
						entries = append(entries, configEntry{
							Key:    key,
							Value:  displayValue(key, value, listParams.Reveal),
							Sealed: mtxchat.IsSealed(key),
						})
					}

					if done, err := listParams.EmitJSON(app.Stdout, entries); done {
						return err
					}
					tw := tabwriter.NewWriter(app.Stdout, 2, 0, 2, ' ', 0)
					for _, entry := range entries {
						fmt.Fprintf(tw, "%s\t%s\n", entry.Key, entry.Value)
					}
					return tw.Flush()
				},
			},
		},
	}
}

func displayValue(key, value string, reveal bool) string {
	if mtxchat.IsSealed(key) && !reveal {
		return sealedDisplay
	}
	return value
}
