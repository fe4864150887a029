// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers mtxchat handles: user IDs, room IDs, room aliases, event
// IDs, and server names.
//
// Identifiers arrive from two directions. User-typed parts (a user name
// and a domain, a room name and a domain) are combined with the
// constructors [NewUserID] and [NewRoomAlias]. Server-assigned values
// (room IDs from alias resolution, event IDs from /sync) are parsed at
// the boundary with the Parse functions.
//
// All types implement encoding.TextMarshaler, so they serialize as their
// canonical string form in JSON. The zero value of every type is the
// "unset" identifier; use IsZero to check.
package ref
