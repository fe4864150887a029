// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for the password and
// access token that mtxchat handles during login and sync.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock, and marks it excluded from core
// dumps via madvise(MADV_DONTDUMP). On Close, the memory is zeroed,
// unlocked, and unmapped.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [NewFromString] -- copies a string into protected memory
//   - [ReadFromPath] -- reads a password file (or stdin) into a buffer
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries such as JSON request
// bodies). After Close, any access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix only.
package secret
