// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mtxchat

import "context"

// MaskedPlaceholder is what prompters show in a Masked field.
const MaskedPlaceholder = "*****"

// Prompter shows a blocking form and returns one FieldValue per field,
// in field order. Implementations return ErrPromptCancelled (possibly
// wrapped) when the user dismisses the form.
type Prompter interface {
	Prompt(ctx context.Context, form Form) ([]FieldValue, error)
}

// Form is a titled list of fields.
type Form struct {
	Title  string
	Fields []Field
}

// Field is one labelled input.
type Field struct {
	// Name is a stable identifier, normally the config key the field
	// edits.
	Name  string
	Label string

	// Value pre-fills the input.
	Value string

	// Secret hides typed characters.
	Secret bool

	// Masked means a value is already stored but not shown. Value is
	// empty; the prompter displays MaskedPlaceholder and reports Edited
	// only if the user typed into the field.
	Masked bool
}

// FieldValue is the outcome for one field.
type FieldValue struct {
	Value string

	// Edited is true when the user changed the field's content. For a
	// Masked field an unedited value means "keep what is stored".
	Edited bool
}
