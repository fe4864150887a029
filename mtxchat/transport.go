// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"time"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/messaging"
)

// Transport is the engine's view of the chat server. Every method
// addresses a server by its base URL (scheme and domain, no trailing
// slash) so one Transport serves any number of homeservers.
//
// Errors from the homeserver should carry *messaging.MatrixError in
// their chain so callers can distinguish a rejected token from an
// unreachable server.
type Transport interface {
	// WhoAmI checks token and returns the user it belongs to.
	WhoAmI(ctx context.Context, server, token string) (ref.UserID, error)

	// PasswordLoginSupported reports whether the server accepts
	// m.login.password.
	PasswordLoginSupported(ctx context.Context, server string) (bool, error)

	// Authenticate performs a password login and returns the new
	// access token. user is a full user ID or a localpart.
	Authenticate(ctx context.Context, server, user, password string) (string, error)

	// ResolveRoomAlias looks up the room ID an alias points to.
	ResolveRoomAlias(ctx context.Context, server string, alias ref.RoomAlias, token string) (ref.RoomID, error)

	// CreateFilter uploads filter for userID and returns its ID.
	CreateFilter(ctx context.Context, server, token string, userID ref.UserID, filter messaging.Filter) (string, error)

	// Sync performs one long-poll.
	Sync(ctx context.Context, request SyncRequest) (*SyncResult, error)

	// Logout invalidates token.
	Logout(ctx context.Context, server, token string) error

	// SendText posts a plain-text message and returns its event ID.
	SendText(ctx context.Context, server, token string, roomID ref.RoomID, body string) (ref.EventID, error)
}

// SyncRequest is the immutable input of one sync cycle.
type SyncRequest struct {
	Server        string
	Filter        string
	Since         string
	TimeoutMillis int
	RoomID        ref.RoomID
	Token         string
}

// SyncResult is what one cycle produced: the cursor to resume from
// and the room's new messages in timeline order.
type SyncResult struct {
	NextBatch string
	Messages  []Message
}

// Message is one m.room.message timeline event.
type Message struct {
	EventID   ref.EventID `json:"event_id"`
	Sender    ref.UserID  `json:"sender"`
	MsgType   string      `json:"msgtype"`
	Body      string      `json:"body"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageHandler receives each cycle's messages from [Engine.Run]. It
// runs on Run's goroutine; a slow handler delays the next cycle.
type MessageHandler func(roomID ref.RoomID, messages []Message)
