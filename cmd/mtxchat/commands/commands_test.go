// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/lib/testutil"
	"github.com/bureau-foundation/mtxchat/messaging"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

// stubTransport is a homeserver with one user (@alice:example.org,
// password hunter2) and one room (#general:example.org).
type stubTransport struct {
	mu    sync.Mutex
	syncs int
	sent  []string

	// blocked receives once a second sync is waiting on its context.
	blocked chan struct{}
}

func newStubTransport() *stubTransport {
	return &stubTransport{blocked: make(chan struct{}, 1)}
}

func (s *stubTransport) WhoAmI(_ context.Context, _, token string) (ref.UserID, error) {
	if token != "tok1" {
		return ref.UserID{}, &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401}
	}
	return ref.MustParseUserID("@alice:example.org"), nil
}

func (s *stubTransport) PasswordLoginSupported(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubTransport) Authenticate(_ context.Context, _, user, password string) (string, error) {
	if user != "@alice:example.org" || password != "hunter2" {
		return "", &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}
	return "tok1", nil
}

func (s *stubTransport) ResolveRoomAlias(_ context.Context, _ string, alias ref.RoomAlias, _ string) (ref.RoomID, error) {
	if alias.String() != "#general:example.org" {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return ref.MustParseRoomID("!abc123:example.org"), nil
}

func (s *stubTransport) CreateFilter(context.Context, string, string, ref.UserID, messaging.Filter) (string, error) {
	return "filter1", nil
}

func (s *stubTransport) Sync(ctx context.Context, request mtxchat.SyncRequest) (*mtxchat.SyncResult, error) {
	s.mu.Lock()
	s.syncs++
	count := s.syncs
	s.mu.Unlock()

	if count == 1 {
		return &mtxchat.SyncResult{
			NextBatch: "s1",
			Messages: []mtxchat.Message{{
				EventID:   ref.MustParseEventID("$e1"),
				Sender:    ref.MustParseUserID("@bob:example.org"),
				MsgType:   "m.text",
				Body:      "hello alice",
				Timestamp: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
			}},
		}, nil
	}
	select {
	case s.blocked <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stubTransport) Logout(context.Context, string, string) error { return nil }

func (s *stubTransport) SendText(_ context.Context, _, _ string, _ ref.RoomID, body string) (ref.EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	return ref.MustParseEventID(fmt.Sprintf("$sent%d", len(s.sent))), nil
}

type testApp struct {
	*App
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	transport *stubTransport
	dir       string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "mtxchat.yaml")
	configYAML := fmt.Sprintf("store:\n  root: %s\n  backend: sqlite\nlog:\n  level: error\n", filepath.Join(dir, "store"))
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatal(err)
	}

	app := &testApp{
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
		transport: newStubTransport(),
		dir:       dir,
	}
	app.App = &App{
		Stdin:      strings.NewReader(""),
		Stdout:     app.stdout,
		Stderr:     app.stderr,
		ConfigPath: configPath,
		Transport:  app.transport,
	}
	return app
}

// run executes one command line and returns what it printed.
func (a *testApp) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a.stdout.Reset()
	err := Root(a.App).Execute(context.Background(), args)
	return a.stdout.String(), err
}

func (a *testApp) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := a.run(t, args...)
	if err != nil {
		t.Fatalf("mtxchat %s: %v\nstderr:\n%s", strings.Join(args, " "), err, a.stderr.String())
	}
	return output
}

func (a *testApp) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (a *testApp) setupAlice(t *testing.T) {
	t.Helper()
	passwordFile := a.writeFile(t, "password", "hunter2\n")
	a.mustRun(t, "credentials", "--user", "alice", "--domain", "example.org", "--password-file", passwordFile)
	a.mustRun(t, "room", "--name", "general")
}

func categoryOf(t *testing.T, err error) cli.ErrorCategory {
	t.Helper()
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error %v is not a ToolError", err)
	}
	return toolErr.Category
}

func TestConfigCommands(t *testing.T) {
	app := newTestApp(t)

	app.mustRun(t, "config", "set", "room_name", "general")
	if output := app.mustRun(t, "config", "get", "room_name"); output != "general\n" {
		t.Errorf("config get room_name = %q, want general", output)
	}

	_, err := app.run(t, "config", "set", "__identity", "x")
	if err == nil || categoryOf(t, err) != cli.CategoryForbidden {
		t.Errorf("setting a reserved key: %v, want forbidden", err)
	}
	if !errors.Is(err, mtxchat.ErrPermissionDenied) {
		t.Errorf("error %v does not wrap ErrPermissionDenied", err)
	}

	list := app.mustRun(t, "config", "list")
	if !strings.Contains(list, "room_name") || strings.Contains(list, "__identity") {
		t.Errorf("config list = %q", list)
	}

	app.mustRun(t, "config", "unset", "room_name")
	output, err := app.run(t, "config", "get", "room_name")
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 || output != "" {
		t.Errorf("config get of a missing key = (%q, %v), want quiet exit 1", output, err)
	}

	if _, err := app.run(t, "config", "get"); err == nil || categoryOf(t, err) != cli.CategoryValidation {
		t.Errorf("config get without key: %v, want validation error", err)
	}
}

func TestCredentialsSealedPassword(t *testing.T) {
	app := newTestApp(t)
	app.setupAlice(t)

	if output := app.mustRun(t, "config", "get", "password"); output != "<sealed>\n" {
		t.Errorf("config get password = %q, want <sealed>", output)
	}
	if output := app.mustRun(t, "config", "get", "password", "--reveal"); output != "hunter2\n" {
		t.Errorf("config get password --reveal = %q, want hunter2", output)
	}
	if output := app.mustRun(t, "config", "get", "_user_id"); output != "@alice:example.org\n" {
		t.Errorf("_user_id = %q", output)
	}

	var entries []configEntry
	if err := json.Unmarshal([]byte(app.mustRun(t, "config", "list", "--json")), &entries); err != nil {
		t.Fatalf("config list --json: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Key == "password" {
			found = true
			if !entry.Sealed || entry.Value != "<sealed>" {
				t.Errorf("password entry = %+v", entry)
			}
		}
	}
	if !found {
		t.Error("config list --json has no password entry")
	}
}

func TestCredentialsValidation(t *testing.T) {
	app := newTestApp(t)

	_, err := app.run(t, "credentials", "--domain", "example.org")
	if err == nil || categoryOf(t, err) != cli.CategoryValidation {
		t.Errorf("--domain without --user: %v, want validation error", err)
	}

	empty := app.writeFile(t, "empty", "\n")
	_, err = app.run(t, "credentials", "--user", "alice", "--password-file", empty)
	if err == nil || categoryOf(t, err) != cli.CategoryValidation {
		t.Errorf("empty password file: %v, want validation error", err)
	}
}

func TestLoginSendAndStatus(t *testing.T) {
	app := newTestApp(t)
	app.setupAlice(t)

	if output := app.mustRun(t, "login"); output != "Logged in as @alice:example.org\n" {
		t.Errorf("login output = %q", output)
	}
	if output := app.mustRun(t, "config", "get", "_token", "--reveal"); output != "tok1\n" {
		t.Errorf("stored token = %q, want tok1", output)
	}

	if output := app.mustRun(t, "send", "hello", "room"); output != "$sent1\n" {
		t.Errorf("send output = %q", output)
	}
	if len(app.transport.sent) != 1 || app.transport.sent[0] != "hello room" {
		t.Errorf("sent = %v", app.transport.sent)
	}

	var status map[string]any
	output := app.mustRun(t, "status", "--json")
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("status --json: %v\n%s", err, output)
	}
	if status["user_id"] != "@alice:example.org" || status["room_id"] != "!abc123:example.org" {
		t.Errorf("status = %v", status)
	}
	if status["has_token"] != true || status["has_password"] != true {
		t.Errorf("status secrets flags = %v", status)
	}
	if strings.Contains(output, "hunter2") || strings.Contains(output, "tok1") {
		t.Errorf("status leaks a secret:\n%s", output)
	}

	app.mustRun(t, "logout")
	if _, err := app.run(t, "config", "get", "_token"); err == nil {
		t.Error("token still stored after logout")
	}
}

func TestLoginFailure(t *testing.T) {
	app := newTestApp(t)
	wrong := app.writeFile(t, "password", "wrong\n")
	app.mustRun(t, "credentials", "--user", "alice", "--domain", "example.org", "--password-file", wrong)

	_, err := app.run(t, "login")
	if err == nil || categoryOf(t, err) != cli.CategoryForbidden {
		t.Fatalf("login with a wrong password: %v, want forbidden", err)
	}
	if !errors.Is(err, mtxchat.ErrAuthFailed) {
		t.Errorf("error %v does not wrap ErrAuthFailed", err)
	}
}

func TestRoomResolveNotFound(t *testing.T) {
	app := newTestApp(t)
	app.setupAlice(t)

	_, err := app.run(t, "room", "--name", "missing", "--resolve")
	if err == nil || categoryOf(t, err) != cli.CategoryNotFound {
		t.Fatalf("resolving a missing alias: %v, want not_found", err)
	}

	output := app.mustRun(t, "room", "--name", "general", "--resolve")
	if output != "Room #general:example.org (!abc123:example.org)\n" {
		t.Errorf("room output = %q", output)
	}
}

func TestSendWithoutRoom(t *testing.T) {
	app := newTestApp(t)
	passwordFile := app.writeFile(t, "password", "hunter2\n")
	app.mustRun(t, "credentials", "--user", "alice", "--domain", "example.org", "--password-file", passwordFile)

	_, err := app.run(t, "send", "hi")
	if err == nil || categoryOf(t, err) != cli.CategoryValidation {
		t.Fatalf("send without a room: %v, want validation error", err)
	}
	if !errors.Is(err, mtxchat.ErrResolutionUnmet) {
		t.Errorf("error %v does not wrap ErrResolutionUnmet", err)
	}
}

func TestListenPrintsMessagesUntilCancelled(t *testing.T) {
	app := newTestApp(t)
	app.setupAlice(t)
	app.stdout.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Root(app.App).Execute(ctx, []string{"listen", "--json"})
	}()

	testutil.RequireReceive(t, app.transport.blocked, 5*time.Second, "second sync cycle never started")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "listen did not stop"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	var message struct {
		RoomID string `json:"room_id"`
		Sender string `json:"sender"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(app.stdout.Bytes(), &message); err != nil {
		t.Fatalf("listen output %q: %v", app.stdout.String(), err)
	}
	if message.RoomID != "!abc123:example.org" || message.Sender != "@bob:example.org" || message.Body != "hello alice" {
		t.Errorf("message = %+v", message)
	}

	if output := app.mustRun(t, "config", "get", "_since"); output != "s1\n" {
		t.Errorf("stored cursor = %q, want s1", output)
	}
}

func TestExecuteGlobalFlags(t *testing.T) {
	app := newTestApp(t)
	configPath := app.ConfigPath
	app.ConfigPath = ""

	if err := Execute(context.Background(), app.App, []string{"--config", configPath, "-v", "status"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if app.ConfigPath != configPath || !app.Verbose {
		t.Errorf("globals not applied: config %q verbose %v", app.ConfigPath, app.Verbose)
	}
	if !strings.Contains(app.stdout.String(), "logged_out") {
		t.Errorf("status output = %q", app.stdout.String())
	}

	if err := Execute(context.Background(), app.App, []string{"--bogus"}); err == nil {
		t.Error("unknown global flag accepted")
	}
}

func TestClassify(t *testing.T) {
	notFound := fmt.Errorf("%w: resolving: %w", mtxchat.ErrTransient,
		&messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404})
	tests := []struct {
		err  error
		want cli.ErrorCategory
	}{
		{mtxchat.ErrPermissionDenied, cli.CategoryForbidden},
		{mtxchat.ErrAuthFailed, cli.CategoryForbidden},
		{mtxchat.ErrNotLoggedIn, cli.CategoryValidation},
		{mtxchat.ErrResolutionUnmet, cli.CategoryValidation},
		{mtxchat.ErrPromptCancelled, cli.CategoryValidation},
		{notFound, cli.CategoryNotFound},
		{fmt.Errorf("%w: sync", mtxchat.ErrTransient), cli.CategoryTransient},
		{errors.New("disk on fire"), cli.CategoryInternal},
	}
	for _, test := range tests {
		if got := categoryOf(t, classify(test.err)); got != test.want {
			t.Errorf("classify(%v) = %s, want %s", test.err, got, test.want)
		}
	}
	if classify(nil) != nil {
		t.Error("classify(nil) != nil")
	}
	passthrough := cli.Validation("bad")
	if classify(passthrough) != error(passthrough) {
		t.Error("classify rewrapped a ToolError")
	}
}
