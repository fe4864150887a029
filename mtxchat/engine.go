// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/mtxchat/lib/clock"
	"github.com/bureau-foundation/mtxchat/lib/ref"
)

// Config holds the engine's collaborators and tunables.
type Config struct {
	// Store is the persistent key/value store. Required. The engine
	// does not close it.
	Store *ConfigStore

	// Transport talks to the homeserver. Required.
	Transport Transport

	// Prompter collects credentials and room choices for
	// PromptCredentials and PromptRoom. Optional; those methods fail
	// without it.
	Prompter Prompter

	// OnMessages receives each cycle's messages from Run. Optional.
	OnMessages MessageHandler

	// Clock drives Serve's retry delay and cycle timestamps. Defaults
	// to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to an unregistered set.
	Metrics *Metrics

	// Scheme is "https" (the default) or "http".
	Scheme string

	// DefaultDomain replaces an unset user or room domain. Defaults
	// to DefaultDomain.
	DefaultDomain string

	// SyncTimeout is the server-side long-poll timeout. Defaults to
	// DefaultSyncTimeout.
	SyncTimeout time.Duration

	// FilterTemplate is an optional JSONC filter definition merged into
	// every filter the engine creates.
	FilterTemplate []byte

	// Hosted declares the network always available. When false the
	// loop restarts only after SetConnected(true).
	Hosted bool
}

// State is the login state machine.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateLoggedIn
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateLoggedIn:
		return "logged_in"
	case StateLoginFailed:
		return "login_failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Engine is one client's session and sync state. Foreground operations
// serialize on a single mutex; the only concurrent activity is one sync
// cycle, which never touches Engine fields.
type Engine struct {
	store         *ConfigStore
	transport     Transport
	prompter      Prompter
	onMessages    MessageHandler
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *Metrics
	scheme        string
	defaultDomain string
	syncTimeout   time.Duration
	template      []byte
	hosted        bool

	// results carries the single in-flight cycle's outcome.
	results chan cycleResult

	mu         sync.Mutex
	state      State
	userID     string
	userName   string
	userDomain string
	token      string
	roomID     string
	roomName   string
	roomDomain string
	filter     string
	since      string
	connected  bool
	listening  bool

	// roomGeneration increments on every room change; a cycle started
	// for an earlier generation cannot advance the cursor.
	roomGeneration uint64

	// cycleSeq numbers cycles; inflight is the one whose result Run
	// accepts. Results of any other cycle are dropped.
	cycleSeq uint64
	inflight *inflightCycle

	lastCycle         time.Time
	lastCycleMessages int
}

// New creates an Engine and loads its cached state from cfg.Store.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("mtxchat: Store is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("mtxchat: Transport is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Scheme != "https" && cfg.Scheme != "http" {
		return nil, fmt.Errorf("mtxchat: unsupported scheme %q", cfg.Scheme)
	}
	if cfg.DefaultDomain == "" {
		cfg.DefaultDomain = DefaultDomain
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if len(cfg.FilterTemplate) > 0 {
		if _, err := parseFilterTemplate(cfg.FilterTemplate); err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		store:         cfg.Store,
		transport:     cfg.Transport,
		prompter:      cfg.Prompter,
		onMessages:    cfg.OnMessages,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		scheme:        cfg.Scheme,
		defaultDomain: cfg.DefaultDomain,
		syncTimeout:   cfg.SyncTimeout,
		template:      cfg.FilterTemplate,
		hosted:        cfg.Hosted,
		results:       make(chan cycleResult, 1),
	}
	engine.reload()
	return engine, nil
}

// reload fills the caches from the store.
func (e *Engine) reload() {
	e.userName = e.store.GetOr(KeyUserName, "")
	e.userDomain = e.store.GetOr(KeyUserDomain, e.defaultDomain)
	e.userID = e.store.GetOr(KeyUserID, "")
	e.roomName = e.store.GetOr(KeyRoomName, "")
	e.roomDomain = e.store.GetOr(KeyRoomDomain, "")
	e.roomID = e.store.GetOr(KeyRoomID, "")
	e.filter = e.store.GetOr(KeyFilter, "")
	e.since = e.store.GetOr(KeySince, "")
}

// Set stores a config value and refreshes the cache that mirrors it.
// Changing room_name or room_domain clears the room ID, filter, and
// cursor with it.
func (e *Engine) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if (key == KeyRoomName && value != e.roomName) || (key == KeyRoomDomain && value != e.roomDomain) {
		if err := e.clearRoomLocked(); err != nil {
			return err
		}
	}
	if err := e.store.Set(key, value); err != nil {
		return err
	}
	e.applyLocked(key, value)
	return nil
}

// Unset removes a config value and clears the cache that mirrors it.
// Unsetting room_name or room_domain clears the room ID, filter, and
// cursor as Set does.
func (e *Engine) Unset(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if (key == KeyRoomName && e.roomName != "") || (key == KeyRoomDomain && e.roomDomain != "") {
		if err := e.clearRoomLocked(); err != nil {
			return err
		}
	}
	if err := e.store.Unset(key); err != nil {
		return err
	}
	switch key {
	case KeyUserDomain:
		e.applyLocked(key, e.defaultDomain)
	case KeyToken:
		e.dropTokenLocked()
	default:
		e.applyLocked(key, "")
	}
	return nil
}

// Get reads a config value. See ConfigStore.Get.
func (e *Engine) Get(key string) (string, bool, error) {
	return e.store.Get(key)
}

// Keys lists the non-reserved stored keys.
func (e *Engine) Keys() ([]string, error) {
	return e.store.Keys()
}

func (e *Engine) applyLocked(key, value string) {
	switch key {
	case KeyUserName:
		e.userName = value
	case KeyUserDomain:
		e.userDomain = value
	case KeyUserID:
		e.userID = value
	case KeyRoomName:
		e.roomName = value
	case KeyRoomDomain:
		e.roomDomain = value
	case KeyRoomID:
		e.roomID = value
	case KeyFilter:
		e.filter = value
	case KeySince:
		e.since = value
	}
}

// State returns the login state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetConnected records network availability. Outside hosted mode the
// loop restarts only while connected.
func (e *Engine) SetConnected(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connected != connected {
		e.logger.Info("network connectivity changed", "connected", connected)
	}
	e.connected = connected
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State      `json:"state"`
	UserID      string     `json:"user_id,omitempty"`
	Server      string     `json:"server"`
	RoomAlias   string     `json:"room_alias,omitempty"`
	RoomID      string     `json:"room_id,omitempty"`
	Filter      string     `json:"filter,omitempty"`
	Cursor      string     `json:"cursor,omitempty"`
	Listening   bool       `json:"listening"`
	Hosted      bool       `json:"hosted"`
	Connected   bool       `json:"connected"`
	LastCycle   *time.Time `json:"last_cycle,omitempty"`
	LastCount   int        `json:"last_cycle_messages"`
	HasToken    bool       `json:"has_token"`
	HasPassword bool       `json:"has_password"`
}

// Status returns a snapshot of the engine's state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		State:     e.state,
		UserID:    e.userID,
		Server:    e.serverURL(e.userDomain),
		RoomID:    e.roomID,
		Filter:    e.filter,
		Cursor:    e.since,
		Listening: e.listening,
		Hosted:    e.hosted,
		Connected: e.connected,
		LastCount: e.lastCycleMessages,
		HasToken:  e.token != "" || e.storedLocked(KeyToken),
	}
	status.HasPassword = e.storedLocked(KeyPassword)
	if alias, err := e.roomAliasLocked(); err == nil {
		status.RoomAlias = alias.String()
	}
	if !e.lastCycle.IsZero() {
		last := e.lastCycle
		status.LastCycle = &last
	}
	return status
}

// storedLocked reports whether key has a value without unsealing it.
func (e *Engine) storedLocked(key string) bool {
	_, ok, err := e.store.backend.Read(key)
	return err == nil && ok
}

// serverURL builds the homeserver base URL for a domain.
func (e *Engine) serverURL(domain string) string {
	if domain == "" {
		domain = e.defaultDomain
	}
	return e.scheme + "://" + strings.TrimSuffix(domain, "/")
}

// userServerLocked is the user's homeserver.
func (e *Engine) userServerLocked() string {
	return e.serverURL(e.userDomain)
}

// roomAliasLocked builds #room_name:room_domain, or ErrResolutionUnmet
// if either half is unset.
func (e *Engine) roomAliasLocked() (ref.RoomAlias, error) {
	if e.roomName == "" || e.roomDomain == "" {
		return ref.RoomAlias{}, fmt.Errorf("%w: room name and room domain must both be set", ErrResolutionUnmet)
	}
	server, err := ref.ParseServerName(e.roomDomain)
	if err != nil {
		return ref.RoomAlias{}, fmt.Errorf("%w: room domain: %w", ErrResolutionUnmet, err)
	}
	alias, err := ref.NewRoomAlias(e.roomName, server)
	if err != nil {
		return ref.RoomAlias{}, fmt.Errorf("%w: room name: %w", ErrResolutionUnmet, err)
	}
	return alias, nil
}
