// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/lib/secret"
	"github.com/bureau-foundation/mtxchat/messaging"
)

// MatrixTransport implements Transport over the Matrix client-server
// API using the messaging package. Clients are created per server URL
// on first use and share one http.Client.
type MatrixTransport struct {
	httpClient        *http.Client
	logger            *slog.Logger
	deviceDisplayName string

	mu      sync.Mutex
	clients map[string]*messaging.Client
}

// MatrixTransportConfig configures a MatrixTransport.
type MatrixTransportConfig struct {
	// HTTPClient defaults to a client without an overall timeout; the
	// engine bounds each long-poll with its context.
	HTTPClient *http.Client

	Logger *slog.Logger

	// DeviceDisplayName labels devices created by password login.
	DeviceDisplayName string
}

// NewMatrixTransport creates a MatrixTransport.
func NewMatrixTransport(cfg MatrixTransportConfig) *MatrixTransport {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixTransport{
		httpClient:        httpClient,
		logger:            logger,
		deviceDisplayName: cfg.DeviceDisplayName,
		clients:           make(map[string]*messaging.Client),
	}
}

func (t *MatrixTransport) client(server string) (*messaging.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if client, ok := t.clients[server]; ok {
		return client, nil
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     server,
		HTTPClient:        t.httpClient,
		Logger:            t.logger,
		DeviceDisplayName: t.deviceDisplayName,
	})
	if err != nil {
		return nil, err
	}
	t.clients[server] = client
	return client, nil
}

// session returns a DirectSession for token. The caller must Close it.
func (t *MatrixTransport) session(server, token string, userID ref.UserID) (*messaging.DirectSession, error) {
	client, err := t.client(server)
	if err != nil {
		return nil, err
	}
	return client.SessionFromToken(userID, token)
}

func (t *MatrixTransport) WhoAmI(ctx context.Context, server, token string) (ref.UserID, error) {
	session, err := t.session(server, token, ref.UserID{})
	if err != nil {
		return ref.UserID{}, err
	}
	defer session.Close()
	return session.WhoAmI(ctx)
}

func (t *MatrixTransport) PasswordLoginSupported(ctx context.Context, server string) (bool, error) {
	client, err := t.client(server)
	if err != nil {
		return false, err
	}
	return client.SupportsPasswordLogin(ctx)
}

func (t *MatrixTransport) Authenticate(ctx context.Context, server, user, password string) (string, error) {
	client, err := t.client(server)
	if err != nil {
		return "", err
	}

	// An empty password goes out as nil; the homeserver rejects it.
	var passwordBuffer *secret.Buffer
	if password != "" {
		passwordBuffer, err = secret.NewFromString(password)
		if err != nil {
			return "", fmt.Errorf("mtxchat: protecting password: %w", err)
		}
		defer passwordBuffer.Close()
	}

	session, err := client.Login(ctx, user, passwordBuffer)
	if err != nil {
		return "", err
	}
	defer session.Close()
	return session.AccessToken(), nil
}

func (t *MatrixTransport) ResolveRoomAlias(ctx context.Context, server string, alias ref.RoomAlias, token string) (ref.RoomID, error) {
	session, err := t.session(server, token, ref.UserID{})
	if err != nil {
		return ref.RoomID{}, err
	}
	defer session.Close()
	return session.ResolveAlias(ctx, alias)
}

func (t *MatrixTransport) CreateFilter(ctx context.Context, server, token string, userID ref.UserID, filter messaging.Filter) (string, error) {
	session, err := t.session(server, token, userID)
	if err != nil {
		return "", err
	}
	defer session.Close()
	return session.CreateFilter(ctx, filter)
}

func (t *MatrixTransport) Sync(ctx context.Context, request SyncRequest) (*SyncResult, error) {
	session, err := t.session(request.Server, request.Token, ref.UserID{})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	response, err := session.Sync(ctx, messaging.SyncOptions{
		Since:      request.Since,
		Timeout:    request.TimeoutMillis,
		SetTimeout: true,
		Filter:     request.Filter,
	})
	if err != nil {
		// A dead keep-alive connection would otherwise be reused by
		// the next cycle.
		if ctx.Err() == nil {
			if client, clientErr := t.client(request.Server); clientErr == nil {
				client.CloseIdleConnections()
			}
		}
		return nil, err
	}

	return &SyncResult{
		NextBatch: response.NextBatch,
		Messages:  roomMessages(response, request.RoomID),
	}, nil
}

// roomMessages extracts m.room.message events for roomID in timeline
// order. Events of other types, other rooms, or without a string body
// are skipped.
func roomMessages(response *messaging.SyncResponse, roomID ref.RoomID) []Message {
	room, ok := response.Rooms.Join[roomID]
	if !ok {
		room, ok = response.Rooms.Leave[roomID]
		if !ok {
			return nil
		}
	}

	var messages []Message
	for _, event := range room.Timeline.Events {
		if event.Type != messaging.EventTypeRoomMessage {
			continue
		}
		body, ok := event.Content["body"].(string)
		if !ok {
			continue
		}
		msgType, _ := event.Content["msgtype"].(string)
		messages = append(messages, Message{
			EventID:   event.EventID,
			Sender:    event.Sender,
			MsgType:   msgType,
			Body:      body,
			Timestamp: time.UnixMilli(event.OriginServerTS).UTC(),
		})
	}
	return messages
}

func (t *MatrixTransport) Logout(ctx context.Context, server, token string) error {
	session, err := t.session(server, token, ref.UserID{})
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Logout(ctx)
}

func (t *MatrixTransport) SendText(ctx context.Context, server, token string, roomID ref.RoomID, body string) (ref.EventID, error) {
	session, err := t.session(server, token, ref.UserID{})
	if err != nil {
		return ref.EventID{}, err
	}
	defer session.Close()
	return session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
}
