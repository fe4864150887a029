// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides the interactive terminal form mtxchat uses to
// collect credentials and room choices. Built on bubbletea (Elm
// architecture) with bubbles text inputs and lipgloss styling.
//
// [FormModel] is a plain tea.Model and can be driven directly with key
// messages; [Prompter] runs it as a program and satisfies
// mtxchat.Prompter.
package tui
