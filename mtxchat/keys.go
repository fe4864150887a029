// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import "time"

// Persisted keys. Keys with a leading underscore are derived by the
// engine; they are settable but normally left alone. Keys with the
// reserved "__" prefix are internal and cannot be set or unset.
const (
	KeyUserName   = "user_name"
	KeyUserDomain = "user_domain"
	KeyUserID     = "_user_id"
	KeyPassword   = "password"
	KeyToken      = "_token"
	KeyRoomName   = "room_name"
	KeyRoomDomain = "room_domain"
	KeyRoomID     = "_room_id"
	KeyFilter     = "_filter"
	KeySince      = "_since"

	keyIdentity = "__identity"
)

// ReservedPrefix marks keys that Set and Unset refuse.
const ReservedPrefix = "__"

const (
	// DefaultDomain is the home-server domain used when user_domain is
	// unset.
	DefaultDomain = "matrix.org"

	// DefaultSyncTimeout is the server-side long-poll timeout.
	DefaultSyncTimeout = 60 * time.Second

	// DefaultNamespace is the store namespace the CLI uses.
	DefaultNamespace = "mtxchat"

	// syncGrace is added to the long-poll timeout for the cycle's
	// client-side deadline.
	syncGrace = 15 * time.Second
)

// sealedKeys are encrypted at rest.
var sealedKeys = map[string]bool{
	KeyPassword: true,
	KeyToken:    true,
}

// roomScopedKeys are cleared together whenever the room changes.
var roomScopedKeys = []string{KeyRoomID, KeySince, KeyFilter}
