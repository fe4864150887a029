// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/lib/secret"
)

// DirectSession is an authenticated Matrix session: a Client plus an
// access token held in a secret.Buffer. The caller must call Close when
// the DirectSession is no longer needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// transactionEntropy feeds ULID transaction IDs. Monotonic within
	// one millisecond, so rapid sends never collide.
	entropyMu          sync.Mutex
	transactionEntropy *ulid.MonotonicEntropy
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@alice:matrix.org").
// Zero for sessions built from a token without a known user.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// AccessToken returns the access token as a heap string. Use only at
// boundaries that need a string, such as persisting the token.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// DeviceID returns the device ID for this session. Empty for sessions
// built from a stored token.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// Close releases the access token memory. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the user ID it belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	if response.UserID.IsZero() {
		return ref.UserID{}, fmt.Errorf("messaging: whoami response carried no user_id")
	}
	return response.UserID, nil
}

// ResolveAlias resolves a room alias (e.g., "#general:matrix.org") to a room ID.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}

	var response ResolveAliasResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse resolve alias response: %w", err)
	}
	if response.RoomID.IsZero() {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q: response carried no room_id", alias)
	}
	return response.RoomID, nil
}

// CreateFilter uploads a sync filter for the session's user and returns
// its ID. The session must know its user ID.
func (s *DirectSession) CreateFilter(ctx context.Context, filter Filter) (string, error) {
	if s.userID.IsZero() {
		return "", fmt.Errorf("messaging: create filter requires a session user ID")
	}
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) + "/filter"
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, filter)
	if err != nil {
		return "", fmt.Errorf("messaging: create filter failed: %w", err)
	}

	var response CreateFilterResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse create filter response: %w", err)
	}
	if response.FilterID == "" {
		return "", fmt.Errorf("messaging: create filter response carried no filter_id")
	}
	return response.FilterID, nil
}

// Sync performs an incremental sync with the homeserver. With a
// timeout set, the server holds the request open until events arrive
// or the timeout passes; ctx must allow for that.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout || options.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// SendMessage sends an m.room.message event to a room and returns its
// event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, EventTypeRoomMessage, content)
}

// SendEvent sends an event of any type to a room. Uses Matrix's
// idempotent PUT with a fresh transaction ID.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// Logout invalidates this session's access token on the homeserver.
func (s *DirectSession) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, struct{}{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}

// nextTransactionID returns a ULID: unique across restarts and sortable
// by send time.
func (s *DirectSession) nextTransactionID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	if s.transactionEntropy == nil {
		s.transactionEntropy = ulid.Monotonic(rand.Reader, 0)
	}
	return ulid.MustNew(ulid.Now(), s.transactionEntropy).String()
}
