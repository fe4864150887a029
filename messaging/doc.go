// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API that
// mtxchat needs: password login, token checks, room alias resolution,
// filter upload, long-poll sync, sending text messages, and logout.
//
// [Client] is an unauthenticated client holding the homeserver URL and
// HTTP transport. It reports the supported login flows and performs
// password login, returning a [DirectSession]. [Client.SessionFromToken]
// builds a session from a stored access token without a network call.
//
// The access token of a DirectSession, and the password passed to
// [Client.Login], live in mmap-backed secret.Buffer memory (locked
// against swap, excluded from core dumps). Callers must Close sessions.
//
// All API errors are returned as [*MatrixError] carrying the Matrix
// error code and HTTP status. [IsMatrixError] tests for a code;
// [IsUnauthorized] recognizes a rejected or missing token. Request URLs
// are built by string concatenation with url.PathEscape on each path
// segment, so aliases and room IDs containing ':' or '/' survive intact.
package messaging
