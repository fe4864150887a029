// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"fmt"
	"log/slog"
	"strings"
)

// Backend kinds accepted by [Open].
const (
	KindDir    = "dir"
	KindSQLite = "sqlite"
)

// Backend is a namespaced, durable key/value store. Every mutation has
// reached stable storage when the call returns. Implementations are
// safe for concurrent use.
type Backend interface {
	// Write stores value under key, replacing any previous value.
	Write(key string, value []byte) error

	// Read returns the value for key. A missing key returns
	// (nil, false, nil).
	Read(key string) ([]byte, bool, error)

	// Delete removes every listed key. Missing keys are skipped.
	// Backends that support it apply the whole batch atomically.
	Delete(keys ...string) error

	// Keys lists stored keys in ascending order.
	Keys() ([]string, error)

	// Close releases the backend. Further calls fail.
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	// Kind is KindDir or KindSQLite. Defaults to KindDir.
	Kind string

	// Root is the directory holding all namespaces. Created if absent.
	Root string

	// Namespace names this store within Root.
	Namespace string

	// Logger receives open/close and recovery messages. Nil discards.
	Logger *slog.Logger
}

// Open opens (creating if necessary) the namespace described by cfg.
func Open(cfg Config) (Backend, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("kvstore: Root is required")
	}
	if err := validateName(cfg.Namespace, "namespace"); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Kind {
	case "", KindDir:
		return openDir(cfg.Root, cfg.Namespace, logger)
	case KindSQLite:
		return openSQLite(cfg.Root, cfg.Namespace, logger)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend kind %q", cfg.Kind)
	}
}

// ValidateKey reports whether key can be stored by every backend:
// non-empty, no path separators or NUL, no leading '.'.
func ValidateKey(key string) error {
	return validateName(key, "key")
}

func validateName(name, label string) error {
	if name == "" {
		return fmt.Errorf("kvstore: %s is empty", label)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("kvstore: %s %q must not start with '.'", label, name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("kvstore: %s %q contains a path separator or NUL", label, name)
	}
	return nil
}
