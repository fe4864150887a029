// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/mtxchat/lib/ref"
)

// ResolveRoom makes sure the room ID for #room_name:room_domain is
// known. A cached ID returns immediately. With the name or domain
// unset it fails with ErrResolutionUnmet before any network call.
// Otherwise the alias is looked up on the user's homeserver and the ID
// persisted; a lookup failure wraps ErrTransient and writes nothing.
func (e *Engine) ResolveRoom(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveRoomLocked(ctx)
}

func (e *Engine) resolveRoomLocked(ctx context.Context) error {
	if e.roomID != "" {
		return nil
	}
	alias, err := e.roomAliasLocked()
	if err != nil {
		return err
	}
	if e.token == "" {
		return ErrNotLoggedIn
	}

	server := e.userServerLocked()
	roomID, err := e.transport.ResolveRoomAlias(ctx, server, alias, e.token)
	if err != nil {
		e.metrics.Resolutions.WithLabelValues("room", "error").Inc()
		e.logger.Warn("room alias lookup failed", "alias", alias, "server", server, "error", err)
		return fmt.Errorf("%w: resolving %s: %w", ErrTransient, alias, err)
	}
	if err := e.store.put(KeyRoomID, roomID.String()); err != nil {
		return err
	}
	e.roomID = roomID.String()
	e.metrics.Resolutions.WithLabelValues("room", "ok").Inc()
	e.logger.Info("resolved room", "alias", alias, "room_id", e.roomID)
	return nil
}

// SetRoom selects a new room by alias parts. The room ID, filter and
// cursor are cleared as one batch before the new name and domain are
// stored. An empty domain means the user's home-server domain.
func (e *Engine) SetRoom(ctx context.Context, name, domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setRoomLocked(name, domain)
}

func (e *Engine) setRoomLocked(name, domain string) error {
	if domain == "" {
		domain = e.userDomain
	}
	server, err := ref.ParseServerName(domain)
	if err != nil {
		return fmt.Errorf("mtxchat: invalid room domain: %w", err)
	}
	alias, err := ref.NewRoomAlias(name, server)
	if err != nil {
		return fmt.Errorf("mtxchat: invalid room name: %w", err)
	}

	if err := e.clearRoomLocked(); err != nil {
		return err
	}
	if err := e.store.put(KeyRoomName, alias.Localpart()); err != nil {
		return err
	}
	e.roomName = alias.Localpart()
	if err := e.store.put(KeyRoomDomain, domain); err != nil {
		return err
	}
	e.roomDomain = domain

	e.logger.Info("room changed, cleared room ID, filter and cursor", "alias", alias)
	return nil
}

// clearRoomLocked drops every room-derived value, durably first.
func (e *Engine) clearRoomLocked() error {
	if err := e.store.remove(roomScopedKeys...); err != nil {
		return err
	}
	e.roomID = ""
	e.filter = ""
	e.since = ""
	e.roomGeneration++
	return nil
}

// PromptRoom asks for the room name and domain through the Prompter,
// pre-filled from the store, and applies them with SetRoom.
func (e *Engine) PromptRoom(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.prompter == nil {
		return fmt.Errorf("mtxchat: no prompter configured")
	}
	values, err := e.prompt(ctx, Form{
		Title: "Matrix room",
		Fields: []Field{
			{Name: KeyRoomName, Label: "Room name", Value: e.roomName},
			{Name: KeyRoomDomain, Label: "Room domain", Value: e.roomDomain},
		},
	})
	if err != nil {
		return err
	}
	return e.setRoomLocked(values[0].Value, values[1].Value)
}
