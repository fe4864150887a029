// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "strconv"

// ExitError ends the process with Code and nothing more on stderr. The
// command has already said what it needs to (or deliberately nothing,
// as "config get" does for an unset key).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return "exit status " + strconv.Itoa(e.Code) }

func (e *ExitError) ExitCode() int { return e.Code }
