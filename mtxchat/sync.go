// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/mtxchat/lib/clock"
	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/messaging"
)

// cycleResult is the only thing a cycle goroutine hands back.
type cycleResult struct {
	seq        uint64
	roomID     ref.RoomID
	generation uint64
	cursor     string
	messages   []Message
	err        error
	started    time.Time
	finished   time.Time
}

// Listen starts one sync cycle. It returns false without error when a
// cycle is already in flight or the session is not logged in. The room
// and then the filter are resolved first if not cached; a resolution
// error is returned and no cycle starts.
//
// The cycle runs on its own goroutine with a snapshot of the server,
// filter, cursor, room and token. Its result is consumed by Run.
func (e *Engine) Listen(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listenLocked(ctx)
}

func (e *Engine) listenLocked(ctx context.Context) (bool, error) {
	if e.listening {
		e.logger.Debug("already listening")
		return false, nil
	}
	if e.state != StateLoggedIn || e.token == "" {
		e.logger.Info("not listening: not logged in")
		return false, nil
	}
	if err := e.resolveRoomLocked(ctx); err != nil {
		return false, err
	}
	if err := e.resolveFilterLocked(ctx); err != nil {
		return false, err
	}
	roomID, err := ref.ParseRoomID(e.roomID)
	if err != nil {
		return false, fmt.Errorf("%w: stored room ID: %w", ErrResolutionUnmet, err)
	}

	request := SyncRequest{
		Server:        e.serverURL(e.roomDomain),
		Filter:        e.filter,
		Since:         e.since,
		TimeoutMillis: int(e.syncTimeout / time.Millisecond),
		RoomID:        roomID,
		Token:         e.token,
	}
	e.cycleSeq++
	cycleCtx, cancel := context.WithCancel(ctx)
	current := &inflightCycle{
		seq:        e.cycleSeq,
		cancel:     cancel,
		superseded: make(chan struct{}),
	}
	e.inflight = current
	e.listening = true
	e.metrics.Listening.Set(1)
	e.logger.Debug("started listening", "room_id", roomID, "since", request.Since, "cycle", current.seq)

	go e.cycle(cycleCtx, current, request, e.roomGeneration)
	return true, nil
}

// inflightCycle identifies the running cycle. superseded is closed when
// ListenOver completes the cycle before its result arrives.
type inflightCycle struct {
	seq        uint64
	cancel     context.CancelFunc
	superseded chan struct{}
}

func (c *inflightCycle) supersede() {
	close(c.superseded)
	c.cancel()
}

// cycle performs one long-poll. It reads only its arguments and the
// engine's immutable collaborators.
func (e *Engine) cycle(ctx context.Context, current *inflightCycle, request SyncRequest, generation uint64) {
	result := cycleResult{
		seq:        current.seq,
		roomID:     request.RoomID,
		generation: generation,
		started:    e.clock.Now(),
	}

	deadline := time.Duration(request.TimeoutMillis)*time.Millisecond + syncGrace
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	response, err := e.transport.Sync(ctx, request)
	switch {
	case err != nil:
		result.err = fmt.Errorf("%w: sync: %w", ErrTransient, err)
	case response.NextBatch == "":
		result.err = fmt.Errorf("%w: sync returned no next_batch", ErrTransient)
	default:
		result.cursor = response.NextBatch
		result.messages = response.Messages
	}
	result.finished = e.clock.Now()

	select {
	case <-current.superseded:
		return
	default:
	}
	select {
	case e.results <- result:
	case <-current.superseded:
	}
}

// ListenOver completes the in-flight cycle with cursor. That cycle is
// cancelled and its result, pending or future, is discarded. The
// listening flag is always cleared. An empty cursor stops the loop.
// Otherwise the cursor is persisted and, if the session is still
// logged in and the network usable, Listen is called again. Reports
// whether a new cycle started.
func (e *Engine) ListenOver(ctx context.Context, cursor string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight != nil {
		e.inflight.supersede()
		e.inflight = nil
		select {
		case <-e.results:
		default:
		}
	}
	return e.listenOverLocked(ctx, cursor, e.roomGeneration)
}

func (e *Engine) listenOverLocked(ctx context.Context, cursor string, generation uint64) bool {
	e.listening = false
	e.inflight = nil
	e.metrics.Listening.Set(0)

	if cursor == "" {
		e.logger.Info("sync loop stopped: cycle produced no cursor")
		return false
	}
	if generation != e.roomGeneration {
		e.logger.Info("discarding cursor from previous room")
	} else {
		if err := e.store.put(KeySince, cursor); err != nil {
			e.logger.Warn("sync loop stopped: cursor not persisted", "error", err)
			return false
		}
		e.since = cursor
	}

	if e.state != StateLoggedIn {
		e.logger.Info("sync loop stopped: logged out")
		return false
	}
	if !e.networkUsableLocked() {
		e.logger.Info("sync loop stopped: network not connected")
		return false
	}

	started, err := e.listenLocked(ctx)
	if err != nil {
		e.logger.Warn("sync loop stopped: restart failed", "error", err)
		return false
	}
	if started {
		e.metrics.Restarts.Inc()
	}
	return started
}

func (e *Engine) networkUsableLocked() bool {
	return e.hosted || e.connected
}

// Run consumes cycle results until the loop stops. Each batch goes to
// the configured MessageHandler before ListenOver decides on a
// restart. Returns nil when the loop stops (including when nothing was
// listening) and ctx.Err() when cancelled; a cycle still in flight at
// cancellation is consumed by the next Run.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if !e.isListening() {
			return nil
		}

		var result cycleResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result = <-e.results:
		}
		if !e.isCurrent(result) {
			e.logger.Debug("dropping result of superseded cycle", "cycle", result.seq)
			continue
		}

		if e.onMessages != nil && len(result.messages) > 0 {
			e.onMessages(result.roomID, result.messages)
		}
		if !e.finishCycle(ctx, result) {
			return nil
		}
	}
}

// finishCycle records a result and hands its cursor to ListenOver.
// A result from a superseded cycle is dropped and the loop goes on.
func (e *Engine) finishCycle(ctx context.Context, result cycleResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight == nil || result.seq != e.inflight.seq {
		e.logger.Debug("dropping result of superseded cycle", "cycle", result.seq)
		return true
	}
	e.inflight.cancel()

	e.metrics.CycleDuration.Observe(result.finished.Sub(result.started).Seconds())
	if result.err != nil {
		e.metrics.Cycles.WithLabelValues("failed").Inc()
		e.logger.Warn("sync cycle failed", "room_id", result.roomID, "error", result.err)
		if messaging.IsUnauthorized(result.err) {
			e.logger.Warn("access token rejected during sync, session logged out")
			e.dropTokenLocked()
		}
	} else {
		e.metrics.Cycles.WithLabelValues("ok").Inc()
		e.metrics.Messages.Add(float64(len(result.messages)))
	}
	e.lastCycle = result.finished
	e.lastCycleMessages = len(result.messages)

	return e.listenOverLocked(ctx, result.cursor, result.generation)
}

func (e *Engine) isCurrent(result cycleResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight != nil && e.inflight.seq == result.seq
}

func (e *Engine) isListening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Serve keeps the loop alive for a long-running process: whenever it
// stops after a failed cycle, Serve waits retryInterval and calls
// Listen again. Errors from Listen (resolution) are returned, as is
// ErrNotLoggedIn once the session is gone. While the network is not
// usable Serve waits instead of listening.
func (e *Engine) Serve(ctx context.Context, retryInterval time.Duration) error {
	if retryInterval <= 0 {
		return fmt.Errorf("mtxchat: retry interval must be positive, got %v", retryInterval)
	}
	for {
		if e.networkUsable() {
			started, err := e.Listen(ctx)
			if err != nil {
				return err
			}
			if !started && !e.isListening() {
				return ErrNotLoggedIn
			}
			if err := e.Run(ctx); err != nil {
				return err
			}
			if e.State() != StateLoggedIn {
				return ErrNotLoggedIn
			}
		}

		e.logger.Info("sync loop idle, retrying", "retry_in", retryInterval)
		if err := clock.Sleep(ctx, e.clock, retryInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) networkUsable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.networkUsableLocked()
}

// Send posts a plain-text message to the room, resolving the room
// first if needed.
func (e *Engine) Send(ctx context.Context, body string) (ref.EventID, error) {
	if body == "" {
		return ref.EventID{}, fmt.Errorf("mtxchat: message body is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateLoggedIn || e.token == "" {
		return ref.EventID{}, ErrNotLoggedIn
	}
	if err := e.resolveRoomLocked(ctx); err != nil {
		return ref.EventID{}, err
	}
	roomID, err := ref.ParseRoomID(e.roomID)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("%w: stored room ID: %w", ErrResolutionUnmet, err)
	}

	eventID, err := e.transport.SendText(ctx, e.userServerLocked(), e.token, roomID, body)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("%w: sending to %s: %w", ErrTransient, roomID, err)
	}
	e.logger.Info("message sent", "room_id", roomID, "event_id", eventID)
	return eventID, nil
}
