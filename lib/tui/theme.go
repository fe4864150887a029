// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the palette a FormModel draws with. Values are ANSI 256
// color codes.
type Theme struct {
	NormalText         lipgloss.Color // input text
	FaintText          lipgloss.Color // labels, placeholders, help keys
	SelectedForeground lipgloss.Color // label of the focused field
	HeaderForeground   lipgloss.Color // form title
	BorderColor        lipgloss.Color
	HelpText           lipgloss.Color
}

// DefaultTheme suits a dark terminal background.
var DefaultTheme = Theme{
	NormalText:         "252",
	FaintText:          "245",
	SelectedForeground: "75",
	HeaderForeground:   "255",
	BorderColor:        "240",
	HelpText:           "241",
}
