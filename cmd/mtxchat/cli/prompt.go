// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/mtxchat/lib/secret"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

// LinePrompter asks for each field on its own line. Secret fields are
// read with echo disabled when Input is a terminal. A blank answer
// keeps the pre-filled value (or, for a Masked field, the stored one).
// End of input cancels the form.
type LinePrompter struct {
	Input  io.Reader
	Output io.Writer

	reader *bufio.Reader
}

var _ mtxchat.Prompter = (*LinePrompter)(nil)

// NewLinePrompter returns a prompter on the given streams.
func NewLinePrompter(input io.Reader, output io.Writer) *LinePrompter {
	return &LinePrompter{Input: input, Output: output}
}

func (p *LinePrompter) Prompt(ctx context.Context, form mtxchat.Form) ([]mtxchat.FieldValue, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.Input)
	}
	if form.Title != "" {
		fmt.Fprintln(p.Output, form.Title)
	}

	values := make([]mtxchat.FieldValue, len(form.Fields))
	for index, field := range form.Fields {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", mtxchat.ErrPromptCancelled, err)
		}

		label := field.Label
		if label == "" {
			label = field.Name
		}
		switch {
		case field.Masked:
			fmt.Fprintf(p.Output, "%s [%s]: ", label, mtxchat.MaskedPlaceholder)
		case field.Value != "":
			fmt.Fprintf(p.Output, "%s [%s]: ", label, field.Value)
		default:
			fmt.Fprintf(p.Output, "%s: ", label)
		}

		answer, err := p.readAnswer(field.Secret || field.Masked)
		if err != nil {
			return nil, err
		}

		switch {
		case answer == "" && field.Masked:
			values[index] = mtxchat.FieldValue{}
		case answer == "":
			values[index] = mtxchat.FieldValue{Value: field.Value}
		default:
			values[index] = mtxchat.FieldValue{
				Value:  answer,
				Edited: field.Masked || answer != field.Value,
			}
		}
	}
	return values, nil
}

func (p *LinePrompter) readAnswer(secretField bool) (string, error) {
	if secretField {
		if file, ok := p.Input.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			passwordBytes, err := term.ReadPassword(int(file.Fd()))
			fmt.Fprintln(p.Output)
			if err != nil {
				return "", fmt.Errorf("reading password: %w", err)
			}
			defer secret.Zero(passwordBytes)
			return string(passwordBytes), nil
		}
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", mtxchat.ErrPromptCancelled
		}
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
