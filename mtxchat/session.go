// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/mtxchat/lib/ref"
)

// Login authenticates the session. A cached token is tried first with
// WhoAmI; if that is absent or rejected and the server offers password
// login, the stored user ID and password are used and the new token is
// persisted. Failures wrap ErrAuthFailed and leave the state
// StateLoginFailed with no token in memory. The stored token is not
// removed on failure.
func (e *Engine) Login(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loginLocked(ctx)
}

func (e *Engine) loginLocked(ctx context.Context) error {
	e.state = StateAuthenticating
	e.token = ""
	server := e.userServerLocked()

	cached, _, err := e.store.Get(KeyToken)
	if err != nil {
		e.logger.Warn("cached token unreadable, trying password login", "error", err)
	}
	if cached != "" {
		userID, err := e.transport.WhoAmI(ctx, server, cached)
		if err == nil && userID.String() != e.userID {
			if err := e.store.put(KeyUserID, userID.String()); err != nil {
				e.state = StateLoginFailed
				e.metrics.Logins.WithLabelValues("failed").Inc()
				return fmt.Errorf("mtxchat: persisting user ID: %w", err)
			}
			e.userID = userID.String()
		}
		if err == nil {
			e.token = cached
			e.state = StateLoggedIn
			e.metrics.Logins.WithLabelValues("token").Inc()
			e.logger.Info("logged in with cached token", "user_id", e.userID, "server", server)
			return nil
		}
		e.logger.Info("cached token rejected", "server", server, "error", err)
	}

	token, err := e.passwordLoginLocked(ctx, server)
	if err != nil {
		e.state = StateLoginFailed
		e.metrics.Logins.WithLabelValues("failed").Inc()
		e.logger.Warn("login failed", "server", server, "error", err)
		return err
	}

	if err := e.store.put(KeyToken, token); err != nil {
		e.state = StateLoginFailed
		e.metrics.Logins.WithLabelValues("failed").Inc()
		return fmt.Errorf("mtxchat: persisting access token: %w", err)
	}
	e.token = token
	e.state = StateLoggedIn
	e.metrics.Logins.WithLabelValues("password").Inc()
	e.logger.Info("logged in with password", "user_id", e.userID, "server", server)
	return nil
}

func (e *Engine) passwordLoginLocked(ctx context.Context, server string) (string, error) {
	if e.userID == "" {
		return "", fmt.Errorf("%w: no user configured (set user_name and user_domain)", ErrAuthFailed)
	}
	supported, err := e.transport.PasswordLoginSupported(ctx, server)
	if err != nil {
		return "", fmt.Errorf("%w: querying login flows at %s: %w", ErrAuthFailed, server, err)
	}
	if !supported {
		return "", fmt.Errorf("%w: %s does not offer password login", ErrAuthFailed, server)
	}

	password := e.store.GetOr(KeyPassword, "")
	token, err := e.transport.Authenticate(ctx, server, e.userID, password)
	if err != nil {
		return "", fmt.Errorf("%w: password login for %s: %w", ErrAuthFailed, e.userID, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: server returned an empty token", ErrAuthFailed)
	}
	return token, nil
}

// Credentials are the user-editable login fields.
type Credentials struct {
	UserName string

	// Domain defaults to the engine's default domain when empty.
	Domain string

	// Password is stored only when SetPassword is true, so callers can
	// change the user without re-entering (or clearing) the password.
	Password    string
	SetPassword bool
}

// SetCredentials replaces the stored credentials. The cached token is
// discarded in memory and in the store, the session becomes
// StateLoggedOut, and _user_id is recomputed as @user_name:domain.
// Input is validated before anything is written.
func (e *Engine) SetCredentials(ctx context.Context, creds Credentials) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setCredentialsLocked(creds)
}

func (e *Engine) setCredentialsLocked(creds Credentials) error {
	domain := creds.Domain
	if domain == "" {
		domain = e.defaultDomain
	}
	server, err := ref.ParseServerName(domain)
	if err != nil {
		return fmt.Errorf("mtxchat: invalid domain: %w", err)
	}
	userID, err := ref.NewUserID(creds.UserName, server)
	if err != nil {
		return fmt.Errorf("mtxchat: invalid user name: %w", err)
	}

	if err := e.store.remove(KeyToken); err != nil {
		return err
	}
	e.dropTokenLocked()

	if err := e.store.put(KeyUserName, userID.Localpart()); err != nil {
		return err
	}
	e.userName = userID.Localpart()
	if err := e.store.put(KeyUserDomain, domain); err != nil {
		return err
	}
	e.userDomain = domain
	if creds.SetPassword {
		if err := e.store.put(KeyPassword, creds.Password); err != nil {
			return err
		}
	}
	if err := e.store.put(KeyUserID, userID.String()); err != nil {
		return err
	}
	e.userID = userID.String()

	e.logger.Info("credentials updated", "user_id", e.userID, "password_changed", creds.SetPassword)
	return nil
}

// PromptCredentials asks for user name, domain and password through
// the Prompter, pre-filled from the store, and applies the answers with
// SetCredentials. A stored password is shown masked and is replaced
// only if the user edits that field. Cancelling changes nothing and
// returns ErrPromptCancelled.
func (e *Engine) PromptCredentials(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.prompter == nil {
		return fmt.Errorf("mtxchat: no prompter configured")
	}

	userName, _, err := e.store.Get(KeyUserName)
	if err != nil {
		return err
	}
	domain, _, err := e.store.Get(KeyUserDomain)
	if err != nil {
		return err
	}
	_, hasPassword, err := e.store.backend.Read(KeyPassword)
	if err != nil {
		return fmt.Errorf("mtxchat: reading %q: %w", KeyPassword, err)
	}

	form := Form{
		Title: "Matrix login",
		Fields: []Field{
			{Name: KeyUserName, Label: "User name", Value: userName},
			{Name: KeyUserDomain, Label: "Home-server domain", Value: domain},
			{Name: KeyPassword, Label: "Password", Secret: true, Masked: hasPassword},
		},
	}

	values, err := e.prompt(ctx, form)
	if err != nil {
		return err
	}

	password := values[2]
	return e.setCredentialsLocked(Credentials{
		UserName:    values[0].Value,
		Domain:      values[1].Value,
		Password:    password.Value,
		SetPassword: !hasPassword || password.Edited,
	})
}

// Logout invalidates the token on the server (best effort), removes it
// from the store, and stops the loop from restarting. The credentials
// stay stored.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	token := e.token
	if token == "" {
		token = e.store.GetOr(KeyToken, "")
	}
	if token != "" {
		if err := e.transport.Logout(ctx, e.userServerLocked(), token); err != nil {
			e.logger.Warn("server-side logout failed", "error", err)
		}
	}
	if err := e.store.remove(KeyToken); err != nil {
		return err
	}
	e.dropTokenLocked()
	e.logger.Info("logged out", "user_id", e.userID)
	return nil
}

func (e *Engine) dropTokenLocked() {
	e.token = ""
	e.state = StateLoggedOut
}

// prompt runs the Prompter and checks its answer shape.
func (e *Engine) prompt(ctx context.Context, form Form) ([]FieldValue, error) {
	values, err := e.prompter.Prompt(ctx, form)
	if errors.Is(err, ErrPromptCancelled) {
		e.logger.Info("prompt cancelled", "form", form.Title)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("mtxchat: prompt %q: %w", form.Title, err)
	}
	if len(values) != len(form.Fields) {
		return nil, fmt.Errorf("mtxchat: prompt %q returned %d values for %d fields", form.Title, len(values), len(form.Fields))
	}
	return values, nil
}
