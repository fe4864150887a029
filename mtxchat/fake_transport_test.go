// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/mtxchat/lib/clock"
	"github.com/bureau-foundation/mtxchat/lib/kvstore"
	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/messaging"
)

// fakeTransport records calls and answers from per-method hooks. Sync
// publishes each request on syncs and blocks until the test sends a
// reply on replies (or the cycle context ends).
type fakeTransport struct {
	mu    sync.Mutex
	calls map[string]int

	whoami            func(server, token string) (ref.UserID, error)
	passwordSupported bool
	authenticate      func(server, user, password string) (string, error)
	resolve           func(alias ref.RoomAlias) (ref.RoomID, error)
	createFilter      func(filter messaging.Filter) (string, error)
	sendText          func(roomID ref.RoomID, body string) (ref.EventID, error)

	lastAuth   [3]string
	lastFilter messaging.Filter

	syncs   chan SyncRequest
	replies chan syncReply

	// cancelled receives the request of every Sync whose context
	// ended before a reply.
	cancelled chan SyncRequest
}

type syncReply struct {
	result *SyncResult
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:             make(map[string]int),
		passwordSupported: true,
		syncs:             make(chan SyncRequest, 16),
		cancelled:         make(chan SyncRequest, 16),
		replies:           make(chan syncReply),
	}
}

func (f *fakeTransport) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeTransport) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeTransport) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeTransport) WhoAmI(_ context.Context, server, token string) (ref.UserID, error) {
	f.record("WhoAmI")
	if f.whoami == nil {
		return ref.UserID{}, &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401}
	}
	return f.whoami(server, token)
}

func (f *fakeTransport) PasswordLoginSupported(context.Context, string) (bool, error) {
	f.record("PasswordLoginSupported")
	return f.passwordSupported, nil
}

func (f *fakeTransport) Authenticate(_ context.Context, server, user, password string) (string, error) {
	f.record("Authenticate")
	f.mu.Lock()
	f.lastAuth = [3]string{server, user, password}
	f.mu.Unlock()
	if f.authenticate == nil {
		return "", &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}
	return f.authenticate(server, user, password)
}

func (f *fakeTransport) ResolveRoomAlias(_ context.Context, _ string, alias ref.RoomAlias, _ string) (ref.RoomID, error) {
	f.record("ResolveRoomAlias")
	if f.resolve == nil {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return f.resolve(alias)
}

func (f *fakeTransport) CreateFilter(_ context.Context, _, _ string, _ ref.UserID, filter messaging.Filter) (string, error) {
	f.record("CreateFilter")
	f.mu.Lock()
	f.lastFilter = filter
	f.mu.Unlock()
	if f.createFilter == nil {
		return "filter1", nil
	}
	return f.createFilter(filter)
}

func (f *fakeTransport) Sync(ctx context.Context, request SyncRequest) (*SyncResult, error) {
	f.record("Sync")
	f.syncs <- request
	select {
	case reply := <-f.replies:
		return reply.result, reply.err
	case <-ctx.Done():
		f.cancelled <- request
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Logout(context.Context, string, string) error {
	f.record("Logout")
	return nil
}

func (f *fakeTransport) SendText(_ context.Context, _, _ string, roomID ref.RoomID, body string) (ref.EventID, error) {
	f.record("SendText")
	if f.sendText == nil {
		return ref.MustParseEventID("$sent"), nil
	}
	return f.sendText(roomID, body)
}

// replySync answers the in-flight Sync call.
func (f *fakeTransport) replySync(t *testing.T, result *SyncResult, err error) {
	t.Helper()
	select {
	case f.replies <- syncReply{result: result, err: err}:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("timed out replying to Sync")
	}
}

var errNetwork = errors.New("connection refused")

// testEnv bundles an engine with the fakes behind it.
type testEnv struct {
	engine    *Engine
	store     *ConfigStore
	backend   *kvstore.Memory
	transport *fakeTransport
	clock     *clock.FakeClock
	metrics   *Metrics
	prompter  *fakePrompter
}

type envOption func(*Config)

func newTestEnv(t *testing.T, seed map[string]string, options ...envOption) *testEnv {
	t.Helper()

	backend := kvstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := OpenConfigStore(backend, logger)
	if err != nil {
		t.Fatalf("OpenConfigStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	for key, value := range seed {
		if err := store.put(key, value); err != nil {
			t.Fatalf("seeding %s: %v", key, err)
		}
	}

	env := &testEnv{
		store:     store,
		backend:   backend,
		transport: newFakeTransport(),
		clock:     clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics:   NewMetrics(nil),
		prompter:  &fakePrompter{},
	}
	cfg := Config{
		Store:     store,
		Transport: env.transport,
		Prompter:  env.prompter,
		Clock:     env.clock,
		Logger:    logger,
		Metrics:   env.metrics,
		Hosted:    true,
	}
	for _, option := range options {
		option(&cfg)
	}
	env.engine, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

// aliceSeed is a store holding credentials for @alice:example.org.
func aliceSeed() map[string]string {
	return map[string]string{
		KeyUserName:   "alice",
		KeyUserDomain: "example.org",
		KeyUserID:     "@alice:example.org",
		KeyPassword:   "hunter2",
	}
}

// listeningSeed is aliceSeed plus a token, room and filter, so a
// logged-in engine can Listen without resolution calls.
func listeningSeed() map[string]string {
	seed := aliceSeed()
	seed[KeyToken] = "tok1"
	seed[KeyRoomName] = "general"
	seed[KeyRoomDomain] = "example.org"
	seed[KeyRoomID] = "!abc123:example.org"
	seed[KeyFilter] = "filter1"
	return seed
}

// loginWithToken logs in through the cached-token path.
func (env *testEnv) loginWithToken(t *testing.T) {
	t.Helper()
	env.transport.whoami = func(string, string) (ref.UserID, error) {
		return ref.MustParseUserID("@alice:example.org"), nil
	}
	if err := env.engine.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func (env *testEnv) stored(t *testing.T, key string) (string, bool) {
	t.Helper()
	value, ok, err := env.store.Get(key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return value, ok
}

// fakePrompter returns canned answers and records the forms it saw.
type fakePrompter struct {
	answers []FieldValue
	err     error
	forms   []Form
}

func (p *fakePrompter) Prompt(_ context.Context, form Form) ([]FieldValue, error) {
	p.forms = append(p.forms, form)
	if p.err != nil {
		return nil, p.err
	}
	return p.answers, nil
}
