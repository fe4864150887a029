// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/lib/config"
	"github.com/bureau-foundation/mtxchat/lib/kvstore"
	"github.com/bureau-foundation/mtxchat/lib/tui"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

// App carries process-wide state shared by every command: the standard
// streams, global flags, and optional collaborator overrides.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ConfigPath is --config. Empty falls back to MTXCHAT_CONFIG, then
	// to config.Default().
	ConfigPath string

	// Verbose is --verbose: debug logging.
	Verbose bool

	// Transport replaces the Matrix HTTP transport when set.
	Transport mtxchat.Transport

	// Prompter replaces the interactive prompter when set.
	Prompter mtxchat.Prompter
}

// NewApp returns an App on the process's standard streams.
func NewApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// session is one opened engine plus everything it was built from.
type session struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    *mtxchat.ConfigStore
	engine   *mtxchat.Engine
}

func (s *session) Close() error {
	return s.store.Close()
}

func (a *App) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case a.ConfigPath != "":
		cfg, err = config.LoadFile(a.ConfigPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Validation("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *App) logger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	if a.Verbose {
		level = slog.LevelDebug
	}
	return cli.NewCommandLogger(a.Stderr, level)
}

// open loads configuration, opens the store and builds the engine.
// handler receives sync batches; it may be nil.
func (a *App) open(command string, handler mtxchat.MessageHandler) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := a.logger(cfg).With("command", command)

	if err := cfg.EnsureStoreRoot(); err != nil {
		return nil, cli.Internal("%w", err)
	}
	backend, err := kvstore.Open(kvstore.Config{
		Kind:      cfg.Store.Backend,
		Root:      cfg.Store.Root,
		Namespace: cfg.Store.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return nil, cli.Internal("opening store: %w", err)
	}
	store, err := mtxchat.OpenConfigStore(backend, logger)
	if err != nil {
		backend.Close()
		return nil, cli.Internal("opening store: %w", err)
	}

	var template []byte
	if cfg.Sync.FilterTemplate != "" {
		template, err = os.ReadFile(cfg.Sync.FilterTemplate)
		if err != nil {
			store.Close()
			return nil, cli.Validation("reading sync.filter_template: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	transport := a.Transport
	if transport == nil {
		transport = mtxchat.NewMatrixTransport(mtxchat.MatrixTransportConfig{Logger: logger})
	}

	engine, err := mtxchat.New(mtxchat.Config{
		Store:          store,
		Transport:      transport,
		Prompter:       a.prompter(),
		OnMessages:     handler,
		Logger:         logger,
		Metrics:        mtxchat.NewMetrics(registry),
		Scheme:         cfg.Server.Scheme,
		DefaultDomain:  cfg.Server.DefaultDomain,
		SyncTimeout:    cfg.SyncTimeout(),
		FilterTemplate: template,
		Hosted:         cfg.Network.Hosted,
	})
	if err != nil {
		store.Close()
		return nil, cli.Validation("%w", err)
	}

	return &session{
		config:   cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		engine:   engine,
	}, nil
}

// prompter picks the bubbletea form on an interactive terminal and the
// line prompter everywhere else.
func (a *App) prompter() mtxchat.Prompter {
	if a.Prompter != nil {
		return a.Prompter
	}
	if file, ok := a.Stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return &tui.Prompter{Input: a.Stdin, Output: a.Stderr}
	}
	return cli.NewLinePrompter(a.Stdin, a.Stderr)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Stdout, format, args...)
}
