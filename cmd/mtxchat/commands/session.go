// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/lib/secret"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

func loginCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:    "login",
		Summary: "Log in with the stored token or credentials",
		Description: `Log in to the user's homeserver. A stored access token is verified
first; if the server rejects it, the stored user name and password are
used. The new token is saved, sealed, in the store.`,
		Usage: "mtxchat login",
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			s, err := app.open("login", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.Login(ctx); err != nil {
				return classify(err)
			}
			app.printf("Logged in as %s\n", s.engine.Status().UserID)
			return nil
		},
	}
}

func logoutCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:    "logout",
		Summary: "Invalidate and forget the access token",
		Description: `Log out on the server (best effort) and delete the stored token. The
user name and password are kept, so 'mtxchat login' works again.`,
		Usage: "mtxchat logout",
		Run: func(ctx context.Context, args []string) error {
			s, err := app.open("logout", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.Logout(ctx); err != nil {
				return classify(err)
			}
			app.printf("Logged out\n")
			return nil
		},
	}
}

type credentialsParams struct {
	User         string `flag:"user,u"       desc:"user localpart (prompt for all fields when omitted)"`
	Domain       string `flag:"domain,d"     desc:"homeserver domain (default: server.default_domain)"`
	PasswordFile string `flag:"password-file" desc:"file holding the password, or - for the first line of stdin"`
}

func credentialsCommand(app *App) *cli.Command {
	var params credentialsParams

	return &cli.Command{
		Name:    "credentials",
		Summary: "Set the user name, domain and password",
		Description: `Store the Matrix credentials. Without --user, shows a form pre-filled
with the stored values; leaving the password field untouched keeps the
stored password. Changing credentials drops the stored access token.`,
		Usage: "mtxchat credentials [--user name --domain domain --password-file path]",
		Examples: []cli.Example{
			{
				Description: "Edit credentials interactively",
				Command:     "mtxchat credentials",
			},
			{
				Description: "Set credentials from a script",
				Command:     "mtxchat credentials --user alice --domain example.org --password-file ~/.matrix-pass",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.User == "" && (params.Domain != "" || params.PasswordFile != "") {
				return cli.Validation("--domain and --password-file require --user")
			}

			s, err := app.open("credentials", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if params.User == "" {
				if err := s.engine.PromptCredentials(ctx); err != nil {
					return classify(err)
				}
			} else {
				creds := mtxchat.Credentials{UserName: params.User, Domain: params.Domain}
				if params.PasswordFile != "" {
					buffer, err := secret.ReadFromPath(params.PasswordFile)
					if err != nil {
						return cli.Validation("reading password: %w", err)
					}
					creds.Password = buffer.String()
					creds.SetPassword = true
					buffer.Close()
				}
				if err := s.engine.SetCredentials(ctx, creds); err != nil {
					return cli.Validation("%w", err)
				}
			}

			userID, _, _ := s.engine.Get(mtxchat.KeyUserID)
			app.printf("Credentials saved for %s\n", userID)
			return nil
		},
	}
}

// ensureLoggedIn logs in unless the engine already is.
func ensureLoggedIn(ctx context.Context, engine *mtxchat.Engine) error {
	if engine.State() == mtxchat.StateLoggedIn {
		return nil
	}
	if err := engine.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return nil
}
