// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mtxchat is a durable session and incremental-sync engine for
// a single-room Matrix chat client.
//
// An [Engine] owns everything a client needs between restarts: the
// credentials and access token, the room the user chose (by alias) and
// its resolved room ID, a server-side sync filter scoped to that room,
// and the /sync continuation cursor. All of it lives in a
// [ConfigStore], a namespaced key/value store backed by lib/kvstore
// with the password and token sealed by lib/sealed.
//
// The engine is driven from one foreground goroutine:
//
//	engine.Login(ctx)
//	engine.Listen(ctx)  // resolves room and filter, starts one cycle
//	engine.Run(ctx)     // consumes cycle results, restarts via ListenOver
//
// Each cycle is one long-poll /sync executed on a goroutine that only
// sees an immutable snapshot of the engine's state and reports back on
// a channel. [Engine.ListenOver] is the only place the cursor advances,
// and it restarts the loop only when the cycle produced a cursor, the
// session is still logged in, and the network is usable. A failed
// cycle yields an empty cursor and stops the loop; [Engine.Serve]
// layers a retry interval on top for long-running processes.
//
// Collaborators are injected through [Config]: a [Transport] (the
// production one is [MatrixTransport]), a [Prompter] for interactive
// credential and room forms, a lib/clock Clock, a *slog.Logger, and
// [Metrics].
package mtxchat
