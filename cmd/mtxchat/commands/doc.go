// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the mtxchat command tree. Each command opens
// the store and engine described by the configuration, performs one
// engine operation, and closes them again; only listen stays running.
package commands
