// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	requires "github.com/bureau-foundation/mtxchat/lib/testutil"
	"github.com/bureau-foundation/mtxchat/messaging"
)

const waitTimeout = 5 * time.Second

// newListeningEnv returns a logged-in engine with room and filter
// cached, so Listen goes straight to Sync.
func newListeningEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()
	env := newTestEnv(t, listeningSeed(), options...)
	env.loginWithToken(t)
	return env
}

func (env *testEnv) nextSync(t *testing.T) SyncRequest {
	t.Helper()
	return requires.RequireReceive(t, env.transport.syncs, waitTimeout, "waiting for Sync")
}

func TestListenStartsOneCycle(t *testing.T) {
	env := newListeningEnv(t)
	ctx := context.Background()

	started, err := env.engine.Listen(ctx)
	if err != nil || !started {
		t.Fatalf("Listen = (%v, %v), want (true, nil)", started, err)
	}
	request := env.nextSync(t)

	want := SyncRequest{
		Server:        "https://example.org",
		Filter:        "filter1",
		Since:         "",
		TimeoutMillis: 60000,
		RoomID:        ref.MustParseRoomID("!abc123:example.org"),
		Token:         "tok1",
	}
	if request != want {
		t.Errorf("sync request = %+v, want %+v", request, want)
	}

	started, err = env.engine.Listen(ctx)
	if err != nil || started {
		t.Errorf("second Listen = (%v, %v), want (false, nil)", started, err)
	}
	requires.RequireQuiet(t, env.transport.syncs, 50*time.Millisecond, "second Listen started a cycle")
	if got := env.transport.count("Sync"); got != 1 {
		t.Errorf("Sync calls = %d, want 1", got)
	}
	if got := testutil.ToFloat64(env.metrics.Listening); got != 1 {
		t.Errorf("listening gauge = %v, want 1", got)
	}

	env.transport.replySync(t, nil, errNetwork)
}

func TestListenConcurrentCallers(t *testing.T) {
	env := newListeningEnv(t)

	var wg sync.WaitGroup
	startedCount := make(chan bool, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started, _ := env.engine.Listen(context.Background())
			startedCount <- started
		}()
	}
	wg.Wait()
	close(startedCount)

	total := 0
	for started := range startedCount {
		if started {
			total++
		}
	}
	if total != 1 {
		t.Errorf("%d Listen calls started a cycle, want 1", total)
	}
	env.nextSync(t)
	env.transport.replySync(t, nil, errNetwork)
}

func TestListenNotLoggedIn(t *testing.T) {
	env := newTestEnv(t, listeningSeed())

	started, err := env.engine.Listen(context.Background())
	if err != nil || started {
		t.Errorf("Listen = (%v, %v), want (false, nil)", started, err)
	}
	if env.transport.networkCalls() != 0 {
		t.Error("Listen reached the network without a session")
	}
}

func TestListenResolvesRoomThenFilter(t *testing.T) {
	seed := aliceSeed()
	seed[KeyToken] = "tok1"
	seed[KeyRoomName] = "general"
	seed[KeyRoomDomain] = "example.org"
	env := newTestEnv(t, seed)
	env.loginWithToken(t)
	env.transport.resolve = resolvingTo("!abc123:example.org")

	started, err := env.engine.Listen(context.Background())
	if err != nil || !started {
		t.Fatalf("Listen = (%v, %v)", started, err)
	}
	request := env.nextSync(t)
	if request.RoomID.String() != "!abc123:example.org" || request.Filter != "filter1" {
		t.Errorf("sync request = %+v", request)
	}
	env.transport.replySync(t, nil, errNetwork)
}

func TestListenResolutionFailure(t *testing.T) {
	seed := aliceSeed()
	seed[KeyToken] = "tok1"
	seed[KeyRoomName] = "general"
	seed[KeyRoomDomain] = "example.org"
	env := newTestEnv(t, seed)
	env.loginWithToken(t)
	env.transport.resolve = resolvingTo("!abc123:example.org")
	env.transport.createFilter = func(messaging.Filter) (string, error) { return "", errNetwork }

	started, err := env.engine.Listen(context.Background())
	if started || !errors.Is(err, ErrTransient) {
		t.Fatalf("Listen = (%v, %v), want (false, ErrTransient)", started, err)
	}
	if env.engine.Status().Listening {
		t.Error("listening flag set after a resolution failure")
	}
	if env.transport.count("Sync") != 0 {
		t.Error("Sync called after a resolution failure")
	}
	// The room resolved before the filter failed and stays resolved.
	if env.engine.Status().RoomID != "!abc123:example.org" {
		t.Error("room resolution lost")
	}
}

func TestListenOverRestarts(t *testing.T) {
	env := newListeningEnv(t)
	ctx := context.Background()

	if started, err := env.engine.Listen(ctx); err != nil || !started {
		t.Fatalf("Listen = (%v, %v)", started, err)
	}
	first := env.nextSync(t)

	// ListenOver completes the in-flight cycle itself, so that cycle's
	// long-poll is cancelled.
	if !env.engine.ListenOver(ctx, "s1") {
		t.Fatal("ListenOver(s1) did not restart")
	}
	if cancelled := requires.RequireReceive(t, env.transport.cancelled, waitTimeout, "first cycle not cancelled"); cancelled != first {
		t.Errorf("cancelled sync = %+v, want %+v", cancelled, first)
	}
	request := env.nextSync(t)
	if request.Since != "s1" {
		t.Errorf("restarted cycle since = %q, want s1", request.Since)
	}
	if since, _ := env.stored(t, KeySince); since != "s1" {
		t.Errorf("stored cursor = %q, want s1", since)
	}
	if got := testutil.ToFloat64(env.metrics.Restarts); got != 1 {
		t.Errorf("restarts = %v, want 1", got)
	}

	env.transport.replySync(t, nil, errNetwork)
	if err := env.engine.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.engine.Status().Listening {
		t.Error("listening after the restarted cycle failed")
	}
}

// A cycle that already delivered its result before ListenOver completed
// it must not be consumed later: Run would otherwise restart from its
// stale cursor while the newer cycle is still running.
func TestListenOverDiscardsPendingResult(t *testing.T) {
	delivered := make(chan []Message, 4)
	env := newListeningEnv(t, func(cfg *Config) {
		cfg.OnMessages = func(_ ref.RoomID, messages []Message) { delivered <- messages }
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.engine.Listen(ctx)
	env.nextSync(t)
	stale := Message{Body: requires.UniqueID("stale")}
	env.transport.replySync(t, &SyncResult{NextBatch: "A", Messages: []Message{stale}}, nil)

	if !env.engine.ListenOver(ctx, "s1") {
		t.Fatal("ListenOver(s1) did not restart")
	}
	if request := env.nextSync(t); request.Since != "s1" {
		t.Fatalf("since = %q, want s1", request.Since)
	}
	fresh := Message{Body: requires.UniqueID("fresh")}
	env.transport.replySync(t, &SyncResult{NextBatch: "B", Messages: []Message{fresh}}, nil)

	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	if request := env.nextSync(t); request.Since != "B" {
		t.Errorf("Run restarted from %q, want B", request.Since)
	}
	requires.RequireQuiet(t, env.transport.syncs, 50*time.Millisecond, "a second cycle started alongside the current one")

	batch := requires.RequireReceive(t, delivered, waitTimeout, "waiting for delivery")
	if len(batch) != 1 || batch[0].Body != fresh.Body {
		t.Errorf("delivered %+v, want only %q", batch, fresh.Body)
	}

	env.transport.replySync(t, nil, errNetwork)
	if err := requires.RequireReceive(t, done, waitTimeout, "Run did not return"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	requires.RequireQuiet(t, delivered, 10*time.Millisecond, "stale batch delivered")
	if since, _ := env.stored(t, KeySince); since != "B" {
		t.Errorf("stored cursor = %q, want B", since)
	}
}

func TestListenOverEmptyCursorStops(t *testing.T) {
	env := newListeningEnv(t)
	ctx := context.Background()

	env.engine.Listen(ctx)
	env.nextSync(t)

	if env.engine.ListenOver(ctx, "") {
		t.Fatal("ListenOver(\"\") restarted the loop")
	}
	requires.RequireQuiet(t, env.transport.syncs, 50*time.Millisecond, "empty cursor restarted")
	if env.engine.Status().Listening {
		t.Error("listening flag still set")
	}
	if _, ok := env.stored(t, KeySince); ok {
		t.Error("empty cursor was persisted")
	}
	requires.RequireReceive(t, env.transport.cancelled, waitTimeout, "completed cycle not cancelled")
}

func TestListenOverRequiresSessionAndNetwork(t *testing.T) {
	t.Run("logged out", func(t *testing.T) {
		env := newListeningEnv(t)
		ctx := context.Background()
		env.engine.Listen(ctx)
		env.nextSync(t)

		if err := env.engine.Logout(ctx); err != nil {
			t.Fatalf("Logout: %v", err)
		}
		if env.engine.ListenOver(ctx, "s1") {
			t.Error("restarted after logout")
		}
		if since, _ := env.stored(t, KeySince); since != "s1" {
			t.Errorf("cursor = %q, want s1 persisted even without restart", since)
		}
		requires.RequireReceive(t, env.transport.cancelled, waitTimeout, "completed cycle not cancelled")
	})

	t.Run("offline", func(t *testing.T) {
		env := newListeningEnv(t, func(cfg *Config) { cfg.Hosted = false })
		ctx := context.Background()

		env.engine.SetConnected(true)
		env.engine.Listen(ctx)
		env.nextSync(t)
		env.engine.SetConnected(false)

		if env.engine.ListenOver(ctx, "s1") {
			t.Error("restarted while disconnected")
		}
		env.engine.SetConnected(true)
		requires.RequireReceive(t, env.transport.cancelled, waitTimeout, "completed cycle not cancelled")

		if started, err := env.engine.Listen(ctx); err != nil || !started {
			t.Fatalf("Listen after reconnect = (%v, %v)", started, err)
		}
		if request := env.nextSync(t); request.Since != "s1" {
			t.Errorf("since = %q, want s1", request.Since)
		}
		env.transport.replySync(t, nil, errNetwork)
	})
}

func TestRunDeliversAndStopsOnFailure(t *testing.T) {
	type delivery struct {
		roomID   ref.RoomID
		messages []Message
	}
	delivered := make(chan delivery, 4)
	env := newListeningEnv(t, func(cfg *Config) {
		cfg.OnMessages = func(roomID ref.RoomID, messages []Message) {
			delivered <- delivery{roomID, messages}
		}
	})
	ctx := context.Background()

	if started, err := env.engine.Listen(ctx); err != nil || !started {
		t.Fatalf("Listen = (%v, %v)", started, err)
	}
	runDone := make(chan error, 1)
	go func() { runDone <- env.engine.Run(ctx) }()

	env.nextSync(t)
	env.transport.replySync(t, &SyncResult{
		NextBatch: "s2",
		Messages: []Message{
			{Sender: ref.MustParseUserID("@bob:example.org"), Body: "hi", MsgType: "m.text"},
			{Sender: ref.MustParseUserID("@carol:example.org"), Body: "hello", MsgType: "m.text"},
		},
	}, nil)

	got := requires.RequireReceive(t, delivered, waitTimeout, "waiting for delivery")
	if got.roomID.String() != "!abc123:example.org" || len(got.messages) != 2 || got.messages[0].Body != "hi" {
		t.Errorf("delivered %+v", got)
	}

	request := env.nextSync(t)
	if request.Since != "s2" {
		t.Errorf("second cycle since = %q, want s2", request.Since)
	}

	// An empty batch is not delivered but still advances the cursor.
	env.transport.replySync(t, &SyncResult{NextBatch: "s3"}, nil)
	if request := env.nextSync(t); request.Since != "s3" {
		t.Errorf("third cycle since = %q, want s3", request.Since)
	}
	env.transport.replySync(t, nil, errNetwork)

	if err := requires.RequireReceive(t, runDone, waitTimeout, "waiting for Run"); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	requires.RequireQuiet(t, delivered, 10*time.Millisecond, "empty batch delivered")

	if since, _ := env.stored(t, KeySince); since != "s3" {
		t.Errorf("stored cursor = %q, want s3", since)
	}
	status := env.engine.Status()
	if status.Listening || status.LastCycle == nil {
		t.Errorf("status after stop = %+v", status)
	}
	if ok := testutil.ToFloat64(env.metrics.Cycles.WithLabelValues("ok")); ok != 2 {
		t.Errorf("ok cycles = %v, want 2", ok)
	}
	if failed := testutil.ToFloat64(env.metrics.Cycles.WithLabelValues("failed")); failed != 1 {
		t.Errorf("failed cycles = %v, want 1", failed)
	}
	if messages := testutil.ToFloat64(env.metrics.Messages); messages != 2 {
		t.Errorf("messages = %v, want 2", messages)
	}
}

func TestRunWithoutListening(t *testing.T) {
	env := newListeningEnv(t)
	if err := env.engine.Run(context.Background()); err != nil {
		t.Errorf("Run with nothing in flight = %v, want nil", err)
	}
}

func TestRunCancelled(t *testing.T) {
	env := newListeningEnv(t)

	// The cycle outlives Run's context, so Run can only end through
	// cancellation.
	env.engine.Listen(context.Background())
	env.nextSync(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- env.engine.Run(ctx) }()
	cancel()

	err := requires.RequireReceive(t, runDone, waitTimeout, "waiting for Run")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}

	// The in-flight cycle is picked up by the next Run.
	env.transport.replySync(t, nil, errNetwork)
	if err := env.engine.Run(context.Background()); err != nil {
		t.Errorf("second Run = %v, want nil", err)
	}
	if env.engine.Status().Listening {
		t.Error("listening flag still set after the cycle was consumed")
	}
}

func TestSyncUnauthorizedLogsOut(t *testing.T) {
	env := newListeningEnv(t)
	ctx := context.Background()

	env.engine.Listen(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- env.engine.Run(ctx) }()

	env.nextSync(t)
	env.transport.replySync(t, nil, &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401})

	if err := requires.RequireReceive(t, runDone, waitTimeout, "waiting for Run"); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if state := env.engine.State(); state != StateLoggedOut {
		t.Errorf("State() = %v, want logged_out", state)
	}
}

func TestRoomChangeDuringCycleDiscardsCursor(t *testing.T) {
	env := newListeningEnv(t)
	ctx := context.Background()
	env.transport.resolve = resolvingTo("!def456:example.org")
	env.transport.createFilter = func(messaging.Filter) (string, error) { return "filter2", nil }

	env.engine.Listen(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- env.engine.Run(ctx) }()
	env.nextSync(t)

	if err := env.engine.SetRoom(ctx, "random", "example.org"); err != nil {
		t.Fatalf("SetRoom: %v", err)
	}
	env.transport.replySync(t, &SyncResult{NextBatch: "old-room-cursor"}, nil)

	request := env.nextSync(t)
	if request.RoomID.String() != "!def456:example.org" || request.Since != "" || request.Filter != "filter2" {
		t.Errorf("restart after room change = %+v", request)
	}
	if _, ok := env.stored(t, KeySince); ok {
		t.Error("cursor from the previous room was persisted")
	}

	env.transport.replySync(t, nil, errNetwork)
	requires.RequireReceive(t, runDone, waitTimeout, "waiting for Run")
}

func TestServeRetriesAfterFailedCycle(t *testing.T) {
	env := newListeningEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- env.engine.Serve(ctx, 30*time.Second) }()

	env.nextSync(t)
	env.transport.replySync(t, nil, errNetwork)

	env.clock.WaitForTimers(1)
	requires.RequireQuiet(t, env.transport.syncs, 20*time.Millisecond, "retried before the interval")
	env.clock.Advance(30 * time.Second)

	env.nextSync(t)
	cancel()

	err := requires.RequireReceive(t, serveDone, waitTimeout, "waiting for Serve")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
}

func TestServeStopsWhenLoggedOut(t *testing.T) {
	env := newTestEnv(t, listeningSeed())
	err := env.engine.Serve(context.Background(), time.Second)
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Serve = %v, want ErrNotLoggedIn", err)
	}
}

func TestServeReturnsResolutionErrors(t *testing.T) {
	seed := aliceSeed()
	seed[KeyToken] = "tok1"
	env := newTestEnv(t, seed)
	env.loginWithToken(t)

	err := env.engine.Serve(context.Background(), time.Second)
	if !errors.Is(err, ErrResolutionUnmet) {
		t.Errorf("Serve = %v, want ErrResolutionUnmet", err)
	}
}

func TestSend(t *testing.T) {
	env := newListeningEnv(t)
	var sentTo ref.RoomID
	var sentBody string
	env.transport.sendText = func(roomID ref.RoomID, body string) (ref.EventID, error) {
		sentTo, sentBody = roomID, body
		return ref.MustParseEventID("$evt1"), nil
	}

	body := requires.UniqueID("hello")
	eventID, err := env.engine.Send(context.Background(), body)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if eventID.String() != "$evt1" || sentTo.String() != "!abc123:example.org" || sentBody != body {
		t.Errorf("Send = %s to %s body %q", eventID, sentTo, sentBody)
	}

	if _, err := env.engine.Send(context.Background(), ""); err == nil {
		t.Error("Send accepted an empty body")
	}
}

func TestSendNotLoggedIn(t *testing.T) {
	env := newTestEnv(t, listeningSeed())
	if _, err := env.engine.Send(context.Background(), "hi"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Send = %v, want ErrNotLoggedIn", err)
	}
}
