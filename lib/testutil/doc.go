// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for mtxchat packages.
//
// [RequireReceive], [RequireSend], [RequireClosed], and [RequireQuiet]
// wrap the select-with-deadline pattern so that tests driving the sync
// engine never call time.After directly. These are the only place in
// the test suite where wall-clock timeouts appear; everything else uses
// lib/clock's fake.
//
// [UniqueID] generates monotonically increasing identifiers for
// message bodies and transaction IDs that must be distinguishable
// within a single test run.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
