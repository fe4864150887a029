// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/mtxchat/mtxchat"
)

const (
	// Input width used before the first WindowSizeMsg arrives.
	defaultInputWidth = 40

	// Border (2) + horizontal padding (2).
	formChromeWidth = 4
)

// FormModel is a bubbletea model for one mtxchat.Form: a column of
// labelled text inputs with a help footer. Secret fields echo '*';
// Masked fields start empty and show mtxchat.MaskedPlaceholder.
type FormModel struct {
	form   mtxchat.Form
	inputs []textinput.Model

	// touched records a change of content caused by the user, per
	// field. It is what Edited reports for Masked fields.
	touched []bool

	focus     int
	keys      KeyMap
	help      help.Model
	theme     Theme
	submitted bool
	cancelled bool
}

// NewFormModel builds the model with the first field focused.
func NewFormModel(form mtxchat.Form, theme Theme) FormModel {
	inputs := make([]textinput.Model, len(form.Fields))
	for index, field := range form.Fields {
		input := textinput.New()
		input.Prompt = ""
		input.Width = defaultInputWidth
		input.TextStyle = lipgloss.NewStyle().Foreground(theme.NormalText)
		input.PlaceholderStyle = lipgloss.NewStyle().Foreground(theme.FaintText)
		if field.Secret || field.Masked {
			input.EchoMode = textinput.EchoPassword
			input.EchoCharacter = '*'
		}
		if field.Masked {
			input.Placeholder = mtxchat.MaskedPlaceholder
		} else {
			input.SetValue(field.Value)
		}
		inputs[index] = input
	}

	helpModel := help.New()
	helpModel.Styles.ShortKey = lipgloss.NewStyle().Foreground(theme.FaintText)
	helpModel.Styles.ShortDesc = lipgloss.NewStyle().Foreground(theme.HelpText)
	helpModel.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(theme.HelpText)

	model := FormModel{
		form:    form,
		inputs:  inputs,
		touched: make([]bool, len(inputs)),
		keys:    DefaultKeyMap,
		help:    helpModel,
		theme:   theme,
	}
	if len(model.inputs) > 0 {
		model.inputs[0].Focus()
	}
	return model
}

func (model FormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (model FormModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.resize(message.Width)
		return model, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Cancel):
			model.cancelled = true
			return model, tea.Quit
		case key.Matches(message, model.keys.Submit):
			model.submitted = true
			return model, tea.Quit
		case key.Matches(message, model.keys.Enter):
			if model.focus >= len(model.inputs)-1 {
				model.submitted = true
				return model, tea.Quit
			}
			return model, model.moveFocus(1)
		case key.Matches(message, model.keys.Next):
			return model, model.moveFocus(1)
		case key.Matches(message, model.keys.Previous):
			return model, model.moveFocus(-1)
		}
	}

	if len(model.inputs) == 0 {
		return model, nil
	}
	before := model.inputs[model.focus].Value()
	var command tea.Cmd
	model.inputs[model.focus], command = model.inputs[model.focus].Update(message)
	if model.inputs[model.focus].Value() != before {
		model.touched[model.focus] = true
	}
	return model, command
}

// moveFocus cycles focus by delta, wrapping at both ends.
func (model *FormModel) moveFocus(delta int) tea.Cmd {
	if len(model.inputs) == 0 {
		return nil
	}
	model.inputs[model.focus].Blur()
	model.focus = (model.focus + delta + len(model.inputs)) % len(model.inputs)
	return model.inputs[model.focus].Focus()
}

func (model *FormModel) resize(screenWidth int) {
	labelWidth := model.labelWidth()
	width := screenWidth - formChromeWidth - labelWidth - 2
	if width < 10 {
		width = 10
	}
	for index := range model.inputs {
		model.inputs[index].Width = width
	}
	model.help.Width = screenWidth - formChromeWidth
}

func (model FormModel) labelWidth() int {
	width := 0
	for _, field := range model.form.Fields {
		width = max(width, ansi.StringWidth(fieldLabel(field)))
	}
	return width
}

func (model FormModel) View() string {
	if model.submitted || model.cancelled {
		return ""
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	labelStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	focusedLabelStyle := lipgloss.NewStyle().Bold(true).Foreground(model.theme.SelectedForeground)

	labelWidth := model.labelWidth()
	var lines []string
	if model.form.Title != "" {
		lines = append(lines, titleStyle.Render(model.form.Title), "")
	}
	for index, field := range model.form.Fields {
		label := fieldLabel(field)
		padding := strings.Repeat(" ", labelWidth-ansi.StringWidth(label))
		style := labelStyle
		if index == model.focus {
			style = focusedLabelStyle
		}
		lines = append(lines, style.Render(label)+padding+"  "+model.inputs[index].View())
	}
	lines = append(lines, "", model.help.View(model.keys))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(0, 1).
		Render(strings.Join(lines, "\n")) + "\n"
}

func fieldLabel(field mtxchat.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

// Submitted reports whether the user submitted the form.
func (model FormModel) Submitted() bool { return model.submitted }

// Cancelled reports whether the user dismissed the form.
func (model FormModel) Cancelled() bool { return model.cancelled }

// Values returns one FieldValue per field, in field order. A Masked
// field is Edited only if the user changed its content; other fields
// are Edited when their value differs from the pre-filled one.
func (model FormModel) Values() []mtxchat.FieldValue {
	values := make([]mtxchat.FieldValue, len(model.inputs))
	for index, input := range model.inputs {
		field := model.form.Fields[index]
		value := input.Value()
		edited := value != field.Value
		if field.Masked {
			edited = model.touched[index]
		}
		values[index] = mtxchat.FieldValue{Value: value, Edited: edited}
	}
	return values
}

// Prompter runs a FormModel as a bubbletea program. It implements
// mtxchat.Prompter.
type Prompter struct {
	// Theme defaults to DefaultTheme when zero.
	Theme Theme

	// Input and Output default to the program's stdin and stdout.
	Input  io.Reader
	Output io.Writer
}

var _ mtxchat.Prompter = (*Prompter)(nil)

// Prompt shows form and blocks until the user submits or cancels, or
// ctx is done.
func (prompter *Prompter) Prompt(ctx context.Context, form mtxchat.Form) ([]mtxchat.FieldValue, error) {
	theme := prompter.Theme
	if theme == (Theme{}) {
		theme = DefaultTheme
	}

	options := []tea.ProgramOption{tea.WithContext(ctx)}
	if prompter.Input != nil {
		options = append(options, tea.WithInput(prompter.Input))
	}
	if prompter.Output != nil {
		options = append(options, tea.WithOutput(prompter.Output))
	}

	final, err := tea.NewProgram(NewFormModel(form, theme), options...).Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", mtxchat.ErrPromptCancelled, ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("tui: running form: %w", err)
	}

	return formResult(final)
}

func formResult(final tea.Model) ([]mtxchat.FieldValue, error) {
	model, ok := final.(FormModel)
	if !ok {
		return nil, fmt.Errorf("tui: unexpected final model %T", final)
	}
	if !model.Submitted() {
		return nil, mtxchat.ErrPromptCancelled
	}
	return model.Values(), nil
}
