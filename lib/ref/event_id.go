// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID is a Matrix event ID as it appears in sync timelines and in
// send responses. Modern rooms use "$base64hash" and older ones
// "$opaque:server"; both are opaque here, so only the sigil is checked.
type EventID struct {
	id string
}

func ParseEventID(raw string) (EventID, error) {
	switch {
	case raw == "":
		return EventID{}, fmt.Errorf("empty event ID")
	case raw[0] != '$':
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	case len(raw) == 1:
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID panics where ParseEventID would fail. For literals.
func MustParseEventID(raw string) EventID {
	eventID, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return eventID
}

func (e EventID) String() string { return e.id }

func (e EventID) IsZero() bool { return e.id == "" }

func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

// UnmarshalText decodes "" to the zero EventID; anything else must parse.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
