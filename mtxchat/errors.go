// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import "errors"

var (
	// ErrPermissionDenied is returned when Set or Unset targets a key
	// with the reserved "__" prefix. The store is left unchanged.
	ErrPermissionDenied = errors.New("mtxchat: permission denied")

	// ErrResolutionUnmet is returned when room or filter resolution is
	// attempted before its inputs exist. No network call is made.
	ErrResolutionUnmet = errors.New("mtxchat: resolution preconditions unmet")

	// ErrAuthFailed is returned when Login exhausted both the cached
	// token and the password path.
	ErrAuthFailed = errors.New("mtxchat: authentication failed")

	// ErrTransient wraps transport failures that leave state untouched
	// and may succeed on a later attempt.
	ErrTransient = errors.New("mtxchat: transient failure")

	// ErrNotLoggedIn is returned by operations that need a session.
	ErrNotLoggedIn = errors.New("mtxchat: not logged in")

	// ErrPromptCancelled is returned when the user dismisses a form.
	ErrPromptCancelled = errors.New("mtxchat: prompt cancelled")
)
