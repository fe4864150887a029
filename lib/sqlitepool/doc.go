// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a small SQLite connection pool over
// zombiezen.com/go/sqlite, used by the sqlite backend of lib/kvstore.
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=FULL (default): a committed Set survives power loss,
//     which the session store needs because a lost cursor or token
//     forces a full resync or a fresh login. NORMAL is available for
//     callers that can tolerate losing the last commits.
//   - busy_timeout=5000: wait for a write lock instead of failing with
//     SQLITE_BUSY when the CLI and a running listener share a database.
//   - temp_store=MEMORY.
//
// Usage:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(root, "mtxchat.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package exposes the zombiezen types directly. Callers write SQL,
// use sqlitex.Execute for cached statements, and manage transactions
// with sqlitex.ImmediateTransaction.
package sqlitepool
