// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/messaging"
)

// ResolveFilter makes sure a sync filter for the current room exists.
// A cached filter returns immediately; an unresolved room fails with
// ErrResolutionUnmet before any network call.
func (e *Engine) ResolveFilter(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveFilterLocked(ctx)
}

func (e *Engine) resolveFilterLocked(ctx context.Context) error {
	if e.filter != "" {
		return nil
	}
	if e.roomID == "" {
		return fmt.Errorf("%w: room is not resolved", ErrResolutionUnmet)
	}
	if e.token == "" {
		return ErrNotLoggedIn
	}
	userID, err := ref.ParseUserID(e.userID)
	if err != nil {
		return fmt.Errorf("%w: user ID: %w", ErrResolutionUnmet, err)
	}

	filter, err := buildFilter(e.template, e.roomID)
	if err != nil {
		return err
	}

	server := e.userServerLocked()
	filterID, err := e.transport.CreateFilter(ctx, server, e.token, userID, filter)
	if err != nil {
		e.metrics.Resolutions.WithLabelValues("filter", "error").Inc()
		e.logger.Warn("filter creation failed", "room_id", e.roomID, "error", err)
		return fmt.Errorf("%w: creating filter for %s: %w", ErrTransient, e.roomID, err)
	}
	if err := e.store.put(KeyFilter, filterID); err != nil {
		return err
	}
	e.filter = filterID
	e.metrics.Resolutions.WithLabelValues("filter", "ok").Inc()
	e.logger.Info("created sync filter", "room_id", e.roomID, "filter", filterID)
	return nil
}

// parseFilterTemplate decodes a JSONC filter definition.
func parseFilterTemplate(template []byte) (messaging.Filter, error) {
	var filter messaging.Filter
	if err := json.Unmarshal(jsonc.ToJSON(template), &filter); err != nil {
		return messaging.Filter{}, fmt.Errorf("mtxchat: parsing filter template: %w", err)
	}
	return filter, nil
}

// buildFilter merges the template with the engine's fixed scope: only
// roomID, timeline restricted to m.room.message unless the template
// names types, and presence and account data suppressed unless the
// template configures them.
func buildFilter(template []byte, roomID string) (messaging.Filter, error) {
	var filter messaging.Filter
	if len(template) > 0 {
		parsed, err := parseFilterTemplate(template)
		if err != nil {
			return messaging.Filter{}, err
		}
		filter = parsed
	}

	suppressAll := &messaging.EventFilter{NotTypes: []string{"*"}}
	if filter.Presence == nil {
		filter.Presence = suppressAll
	}
	if filter.AccountData == nil {
		filter.AccountData = suppressAll
	}
	if filter.Room == nil {
		filter.Room = &messaging.RoomFilter{}
	}
	filter.Room.Rooms = []string{roomID}
	filter.Room.NotRooms = nil
	if filter.Room.Timeline == nil {
		filter.Room.Timeline = &messaging.RoomEventFilter{}
	}
	if len(filter.Room.Timeline.Types) == 0 {
		filter.Room.Timeline.Types = []string{messaging.EventTypeRoomMessage}
	}
	return filter, nil
}
