// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/mtxchat/lib/kvstore"
	"github.com/bureau-foundation/mtxchat/lib/sealed"
	"github.com/bureau-foundation/mtxchat/lib/secret"
)

// ConfigStore is the engine's persistent key/value accessor. Values are
// strings; password and token are sealed with an age identity kept
// under the reserved key "__identity", generated on first open.
//
// Every mutation has reached the backend when the call returns.
type ConfigStore struct {
	backend kvstore.Backend
	sealer  *sealed.Sealer
	logger  *slog.Logger
}

// OpenConfigStore wraps backend, loading or creating the sealing
// identity. The store takes ownership of backend; Close closes it.
func OpenConfigStore(backend kvstore.Backend, logger *slog.Logger) (*ConfigStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sealer, err := loadSealer(backend, logger)
	if err != nil {
		return nil, err
	}
	return &ConfigStore{backend: backend, sealer: sealer, logger: logger}, nil
}

func loadSealer(backend kvstore.Backend, logger *slog.Logger) (*sealed.Sealer, error) {
	raw, ok, err := backend.Read(keyIdentity)
	if err != nil {
		return nil, fmt.Errorf("mtxchat: reading sealing identity: %w", err)
	}

	var privateKey *secret.Buffer
	if ok {
		// NewFromBytes zeroes raw.
		privateKey, err = secret.NewFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("mtxchat: protecting sealing identity: %w", err)
		}
	} else {
		privateKey, err = sealed.GenerateIdentity()
		if err != nil {
			return nil, fmt.Errorf("mtxchat: %w", err)
		}
		if err := backend.Write(keyIdentity, privateKey.Bytes()); err != nil {
			privateKey.Close()
			return nil, fmt.Errorf("mtxchat: persisting sealing identity: %w", err)
		}
		logger.Info("generated sealing identity")
	}
	defer privateKey.Close()

	sealer, err := sealed.NewSealer(privateKey)
	if err != nil {
		return nil, fmt.Errorf("mtxchat: sealing identity: %w", err)
	}
	return sealer, nil
}

// IsReserved reports whether key is in the internal namespace.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Set stores value under key. Reserved keys fail with
// ErrPermissionDenied and leave the store unchanged.
func (s *ConfigStore) Set(key, value string) error {
	if IsReserved(key) {
		return fmt.Errorf("%w: may not set %q", ErrPermissionDenied, key)
	}
	return s.put(key, value)
}

// Unset removes key. A missing key is not an error. Reserved keys fail
// with ErrPermissionDenied.
func (s *ConfigStore) Unset(key string) error {
	if IsReserved(key) {
		return fmt.Errorf("%w: may not unset %q", ErrPermissionDenied, key)
	}
	return s.remove(key)
}

// Get returns the value stored under key. A missing key reports
// ok == false with a nil error; errors mean the backend failed or a
// sealed value could not be opened.
func (s *ConfigStore) Get(key string) (string, bool, error) {
	raw, ok, err := s.backend.Read(key)
	if err != nil {
		return "", false, fmt.Errorf("mtxchat: reading %q: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	if !sealedKeys[key] {
		return string(raw), true, nil
	}
	plaintext, err := s.sealer.Open(string(raw))
	if err != nil {
		return "", false, fmt.Errorf("mtxchat: unsealing %q: %w", key, err)
	}
	return string(plaintext), true, nil
}

// GetOr returns the value under key, or fallback when the key is
// absent or unreadable. Read errors are logged.
func (s *ConfigStore) GetOr(key, fallback string) string {
	value, ok, err := s.Get(key)
	if err != nil {
		s.logger.Warn("config read failed, using default", "key", key, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}
	return value
}

// Keys lists stored keys, excluding reserved ones, in ascending order.
func (s *ConfigStore) Keys() ([]string, error) {
	all, err := s.backend.Keys()
	if err != nil {
		return nil, fmt.Errorf("mtxchat: listing keys: %w", err)
	}
	keys := all[:0]
	for _, key := range all {
		if !IsReserved(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// IsSealed reports whether values under key are encrypted at rest.
func IsSealed(key string) bool {
	return sealedKeys[key]
}

// Close closes the backend.
func (s *ConfigStore) Close() error {
	return s.backend.Close()
}

// put writes without the reserved-key check.
func (s *ConfigStore) put(key, value string) error {
	stored := value
	if sealedKeys[key] {
		ciphertext, err := s.sealer.Seal([]byte(value))
		if err != nil {
			return fmt.Errorf("mtxchat: sealing %q: %w", key, err)
		}
		stored = ciphertext
	}
	if err := s.backend.Write(key, []byte(stored)); err != nil {
		return fmt.Errorf("mtxchat: writing %q: %w", key, err)
	}
	s.logger.Debug("config set", "key", key, "value", logValue(key, value))
	return nil
}

// remove deletes keys as one backend batch.
func (s *ConfigStore) remove(keys ...string) error {
	if err := s.backend.Delete(keys...); err != nil {
		return fmt.Errorf("mtxchat: deleting %s: %w", strings.Join(keys, ", "), err)
	}
	s.logger.Debug("config unset", "keys", keys)
	return nil
}

func logValue(key, value string) string {
	if sealedKeys[key] {
		return "<sealed>"
	}
	return value
}
