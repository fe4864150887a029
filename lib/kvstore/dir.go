// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const tempPrefix = ".tmp-"

// DirBackend stores each key as a file in one directory.
type DirBackend struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
	closed bool
}

func openDir(root, namespace string, logger *slog.Logger) (*DirBackend, error) {
	dir := filepath.Join(root, namespace)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("kvstore: creating %s: %w", dir, err)
	}

	// A crash between CreateTemp and Rename leaves a temp file behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempPrefix) {
			logger.Warn("removing interrupted write", "path", filepath.Join(dir, entry.Name()))
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}

	logger.Debug("dir store opened", "path", dir)
	return &DirBackend{dir: dir, logger: logger}, nil
}

// Path returns the namespace directory.
func (b *DirBackend) Path() string { return b.dir }

func (b *DirBackend) Write(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}

	temp, err := os.CreateTemp(b.dir, tempPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	tempPath := temp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tempPath)
		}
	}()

	if _, err := temp.Write(value); err != nil {
		temp.Close()
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("kvstore: sync %s: %w", key, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("kvstore: close %s: %w", key, err)
	}
	if err := os.Rename(tempPath, filepath.Join(b.dir, key)); err != nil {
		return fmt.Errorf("kvstore: rename %s: %w", key, err)
	}
	committed = true

	return b.syncDir()
}

func (b *DirBackend) Read(key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, errClosed
	}

	data, err := os.ReadFile(filepath.Join(b.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: read %s: %w", key, err)
	}
	return data, true, nil
}

func (b *DirBackend) Delete(keys ...string) error {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}

	for _, key := range keys {
		err := os.Remove(filepath.Join(b.dir, key))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("kvstore: delete %s: %w", key, err)
		}
	}
	return b.syncDir()
}

func (b *DirBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list %s: %w", b.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		keys = append(keys, entry.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *DirBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// syncDir makes renames and removals in the namespace directory durable.
func (b *DirBackend) syncDir() error {
	dir, err := os.Open(b.dir)
	if err != nil {
		return fmt.Errorf("kvstore: open %s: %w", b.dir, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("kvstore: sync %s: %w", b.dir, err)
	}
	return nil
}
