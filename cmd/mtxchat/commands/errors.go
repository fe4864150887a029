// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/messaging"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

// classify maps engine errors onto CLI categories with a next step
// where one exists. Errors that are already categorized pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *cli.ToolError
	if errors.As(err, &toolErr) {
		return err
	}

	switch {
	case errors.Is(err, mtxchat.ErrPermissionDenied):
		return cli.Forbidden("%w", err)
	case errors.Is(err, mtxchat.ErrAuthFailed):
		return cli.Forbidden("%w", err).
			WithHint("Check the stored credentials with 'mtxchat credentials'.")
	case errors.Is(err, mtxchat.ErrNotLoggedIn):
		return cli.Validation("%w", err).WithHint("Run 'mtxchat login' first.")
	case errors.Is(err, mtxchat.ErrResolutionUnmet):
		return cli.Validation("%w", err).
			WithHint("Choose a room with 'mtxchat room --name <name> --domain <domain>'.")
	case errors.Is(err, mtxchat.ErrPromptCancelled):
		return cli.Validation("%w", err)
	case messaging.IsMatrixError(err, messaging.ErrCodeNotFound):
		return cli.NotFound("%w", err)
	case errors.Is(err, mtxchat.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return cli.Transient("%w", err)
	default:
		return cli.Internal("%w", err)
	}
}
