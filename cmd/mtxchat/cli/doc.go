// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the mtxchat
// binary: a [Command] tree dispatched by the first positional
// argument, pflag flag sets generated from tagged parameter structs,
// categorized [ToolError] values, and a structured command logger.
//
// It also provides [LinePrompter], the plain-terminal fallback for
// mtxchat.Prompter used when stdin is not an interactive terminal.
package cli
