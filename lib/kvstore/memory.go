// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

var errClosed = errors.New("kvstore: backend is closed")

// Memory is an in-process Backend. Nothing survives the process; it
// exists so packages built on kvstore can test without a filesystem.
// FailWrites makes every mutation fail, for exercising error paths.
type Memory struct {
	mu         sync.Mutex
	entries    map[string][]byte
	closed     bool
	failWrites error
	deletes    [][]string
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// FailWrites makes Write and Delete return err until called again with
// nil.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

// DeleteBatches returns the key lists passed to each Delete call.
func (m *Memory) DeleteBatches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.deletes...)
}

func (m *Memory) Write(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	if m.failWrites != nil {
		return m.failWrites
	}
	m.entries[key] = bytes.Clone(value)
	if m.entries[key] == nil {
		m.entries[key] = []byte{}
	}
	return nil
}

func (m *Memory) Read(key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, errClosed
	}
	value, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (m *Memory) Delete(keys ...string) error {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	if m.failWrites != nil {
		return m.failWrites
	}
	m.deletes = append(m.deletes, append([]string(nil), keys...))
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
