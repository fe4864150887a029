// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is the durable key/value storage under the mtxchat
// ConfigStore. A store is a flat namespace of string keys mapping to
// byte values, with two backends:
//
//   - dir: one file per key under Root/<namespace>/. Writes go to a
//     temporary file that is fsynced and renamed into place, so a key
//     holds either its old or its new value after a crash.
//   - sqlite: one table in Root/<namespace>.db through lib/sqlitepool.
//     Multi-key deletes run in one IMMEDIATE transaction.
//
// [Open] creates the namespace on first use and is idempotent. Reads of
// a missing key report absence (ok == false) and never fail. Delete of
// a missing key is not an error.
//
// A [Memory] backend exists for tests of packages built on kvstore.
package kvstore
