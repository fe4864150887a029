// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/mtxchat/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key   TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// SQLiteBackend stores keys as rows of a single table.
type SQLiteBackend struct {
	pool   *sqlitepool.Pool
	path   string
	logger *slog.Logger
}

func openSQLite(root, namespace string, logger *slog.Logger) (*SQLiteBackend, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("kvstore: creating %s: %w", root, err)
	}
	path := filepath.Join(root, namespace+".db")

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: %w", err)
	}

	backend := &SQLiteBackend{pool: pool, path: path, logger: logger}

	// Take one connection now so schema errors surface from Open.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("kvstore: initializing %s: %w", path, err)
	}
	pool.Put(conn)

	return backend, nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) Write(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	conn, err := b.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	defer b.pool.Put(conn)

	if value == nil {
		value = []byte{}
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO entries (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Read(key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	conn, err := b.pool.Take(context.Background())
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: read %s: %w", key, err)
	}
	defer b.pool.Put(conn)

	var value []byte
	found := false
	err = sqlitex.Execute(conn, `SELECT value FROM entries WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: read %s: %w", key, err)
	}
	return value, found, nil
}

func (b *SQLiteBackend) Delete(keys ...string) (err error) {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}

	conn, err := b.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	defer b.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("kvstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, key := range keys {
		err = sqlitex.Execute(conn, `DELETE FROM entries WHERE key = ?`, &sqlitex.ExecOptions{
			Args: []any{key},
		})
		if err != nil {
			return fmt.Errorf("kvstore: delete %s: %w", key, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Keys() ([]string, error) {
	conn, err := b.pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("kvstore: list: %w", err)
	}
	defer b.pool.Put(conn)

	var keys []string
	err = sqlitex.Execute(conn, `SELECT key FROM entries ORDER BY key`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			keys = append(keys, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: list: %w", err)
	}
	return keys, nil
}

func (b *SQLiteBackend) Close() error {
	return b.pool.Close()
}
