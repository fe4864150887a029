// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so the sync
// engine's retry loop and status timestamps can be tested without real
// waiting.
//
// Production code holds a Clock field set to Real(). Tests use Fake(),
// which stands still until Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := mtxchat.New(mtxchat.Config{Clock: fake, ...})
//	go engine.Serve(ctx, 30*time.Second)
//	fake.WaitForTimers(1)          // wait for the retry timer to register
//	fake.Advance(30 * time.Second) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing the clock.
package clock
