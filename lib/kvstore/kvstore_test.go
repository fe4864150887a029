// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// backendCases opens each persistent backend kind in its own temp root.
func backendCases(t *testing.T) map[string]func(root string) Backend {
	t.Helper()
	open := func(kind string) func(root string) Backend {
		return func(root string) Backend {
			t.Helper()
			backend, err := Open(Config{Kind: kind, Root: root, Namespace: "mtxchat"})
			if err != nil {
				t.Fatalf("Open(%s): %v", kind, err)
			}
			return backend
		}
	}
	return map[string]func(root string) Backend{
		KindDir:    open(KindDir),
		KindSQLite: open(KindSQLite),
		"memory": func(string) Backend {
			return NewMemory()
		},
	}
}

func TestBackendRoundTrip(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			backend := open(t.TempDir())
			defer backend.Close()

			if err := backend.Write("user_name", []byte("alice")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			value, ok, err := backend.Read("user_name")
			if err != nil || !ok || string(value) != "alice" {
				t.Fatalf("Read = %q, %v, %v; want alice, true, nil", value, ok, err)
			}

			// Overwrite.
			if err := backend.Write("user_name", []byte("bob")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			value, _, _ = backend.Read("user_name")
			if string(value) != "bob" {
				t.Errorf("Read after overwrite = %q, want bob", value)
			}

			// Empty values are present, not absent.
			if err := backend.Write("_since", nil); err != nil {
				t.Fatalf("Write empty: %v", err)
			}
			value, ok, err = backend.Read("_since")
			if err != nil || !ok || len(value) != 0 {
				t.Errorf("Read empty = %q, %v, %v; want empty, true, nil", value, ok, err)
			}

			// Binary values survive.
			binary := []byte{0, 1, 2, 0xff, '\n'}
			if err := backend.Write("blob", binary); err != nil {
				t.Fatalf("Write binary: %v", err)
			}
			value, _, _ = backend.Read("blob")
			if !bytes.Equal(value, binary) {
				t.Errorf("Read binary = %v, want %v", value, binary)
			}
		})
	}
}

func TestBackendMissingKey(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			backend := open(t.TempDir())
			defer backend.Close()

			value, ok, err := backend.Read("_token")
			if err != nil {
				t.Fatalf("Read missing: %v", err)
			}
			if ok || value != nil {
				t.Errorf("Read missing = %q, %v; want nil, false", value, ok)
			}

			if err := backend.Delete("_token", "_filter"); err != nil {
				t.Errorf("Delete of missing keys: %v", err)
			}
		})
	}
}

func TestBackendDeleteBatchAndKeys(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			backend := open(t.TempDir())
			defer backend.Close()

			for _, key := range []string{"_room_id", "_since", "_filter", "room_name"} {
				if err := backend.Write(key, []byte("v")); err != nil {
					t.Fatalf("Write %s: %v", key, err)
				}
			}

			if err := backend.Delete("_room_id", "_since", "_filter"); err != nil {
				t.Fatalf("Delete: %v", err)
			}

			keys, err := backend.Keys()
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if want := []string{"room_name"}; !reflect.DeepEqual(keys, want) {
				t.Errorf("Keys() = %v, want %v", keys, want)
			}
		})
	}
}

func TestBackendRejectsInvalidKeys(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			backend := open(t.TempDir())
			defer backend.Close()

			for _, key := range []string{"", "../escape", "a/b", ".hidden", "nul\x00"} {
				if err := backend.Write(key, []byte("x")); err == nil {
					t.Errorf("Write(%q) succeeded, want error", key)
				}
				if _, _, err := backend.Read(key); err == nil {
					t.Errorf("Read(%q) succeeded, want error", key)
				}
			}
		})
	}
}

func TestBackendClosed(t *testing.T) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			backend := open(t.TempDir())
			if err := backend.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := backend.Write("k", []byte("v")); err == nil {
				t.Error("Write after Close succeeded")
			}
		})
	}
}

func TestBackendPersistsAcrossOpen(t *testing.T) {
	for _, kind := range []string{KindDir, KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			root := t.TempDir()
			cfg := Config{Kind: kind, Root: root, Namespace: "mtxchat"}

			first, err := Open(cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := first.Write("_since", []byte("s72594_4483_1934")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := first.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// Opening an existing namespace is idempotent.
			second, err := Open(cfg)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer second.Close()
			value, ok, err := second.Read("_since")
			if err != nil || !ok || string(value) != "s72594_4483_1934" {
				t.Errorf("Read after reopen = %q, %v, %v", value, ok, err)
			}
		})
	}
}

func TestDirBackendRemovesInterruptedWrites(t *testing.T) {
	root := t.TempDir()
	namespaceDir := filepath.Join(root, "mtxchat")
	if err := os.MkdirAll(namespaceDir, 0700); err != nil {
		t.Fatal(err)
	}
	leftover := filepath.Join(namespaceDir, tempPrefix+"_since-123")
	if err := os.WriteFile(leftover, []byte("partial"), 0600); err != nil {
		t.Fatal(err)
	}

	backend, err := Open(Config{Kind: KindDir, Root: root, Namespace: "mtxchat"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("interrupted write %s was not removed", leftover)
	}
	keys, _ := backend.Keys()
	if len(keys) != 0 {
		t.Errorf("Keys() = %v, want none", keys)
	}
}

func TestDirBackendFilePerKey(t *testing.T) {
	root := t.TempDir()
	backend, err := Open(Config{Kind: KindDir, Root: root, Namespace: "mtxchat"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer backend.Close()

	if err := backend.Write("room_domain", []byte("example.org")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "mtxchat", "room_domain"))
	if err != nil {
		t.Fatalf("reading key file: %v", err)
	}
	if string(data) != "example.org" {
		t.Errorf("key file = %q, want example.org", data)
	}
}

func TestOpenValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no root", cfg: Config{Namespace: "mtxchat"}},
		{name: "no namespace", cfg: Config{Root: t.TempDir()}},
		{name: "namespace traversal", cfg: Config{Root: t.TempDir(), Namespace: "../x"}},
		{name: "unknown kind", cfg: Config{Kind: "redis", Root: t.TempDir(), Namespace: "mtxchat"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Open(test.cfg); err == nil {
				t.Error("Open succeeded, want error")
			}
		})
	}
}

func TestMemoryFailWrites(t *testing.T) {
	memory := NewMemory()
	memory.FailWrites(os.ErrPermission)

	if err := memory.Write("k", []byte("v")); err == nil {
		t.Error("Write succeeded with FailWrites set")
	}
	if _, ok, _ := memory.Read("k"); ok {
		t.Error("failed Write left a value behind")
	}

	memory.FailWrites(nil)
	if err := memory.Write("k", []byte("v")); err != nil {
		t.Errorf("Write after clearing FailWrites: %v", err)
	}
	if err := memory.Delete("k", "j"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if batches := memory.DeleteBatches(); !reflect.DeepEqual(batches, [][]string{{"k", "j"}}) {
		t.Errorf("DeleteBatches() = %v", batches)
	}
}
