// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#general:matrix.org").
//
// Room aliases are human-readable names that resolve to opaque RoomIDs
// through the homeserver directory.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	_, server, err := parsePrefixedID(raw, '#', "room alias")
	if err != nil {
		return RoomAlias{}, err
	}
	if err := validateServer(server); err != nil {
		return RoomAlias{}, fmt.Errorf("invalid room alias %q: %w", raw, err)
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// NewRoomAlias builds "#name:server" from a room name and server. A
// leading '#' on name is stripped.
func NewRoomAlias(name string, server ServerName) (RoomAlias, error) {
	if len(name) > 0 && name[0] == '#' {
		name = name[1:]
	}
	if err := validateLocalpart(name, "room name"); err != nil {
		return RoomAlias{}, err
	}
	if server.IsZero() {
		return RoomAlias{}, fmt.Errorf("room alias for %q: server name is empty", name)
	}
	return RoomAlias{alias: "#" + name + ":" + server.name}, nil
}

// String returns the full room alias string (e.g., "#general:matrix.org").
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value (uninitialized).
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias localpart without the '#' prefix or ':server' suffix.
func (a RoomAlias) Localpart() string {
	localpart, _, _ := parsePrefixedID(a.alias, '#', "room alias")
	return localpart
}

// Server returns the server name from the alias.
func (a RoomAlias) Server() ServerName {
	_, server, err := parsePrefixedID(a.alias, '#', "room alias")
	if err != nil {
		return ServerName{}
	}
	return ServerName{name: server}
}

func (a RoomAlias) MarshalText() ([]byte, error) {
	return []byte(a.alias), nil
}

// UnmarshalText validates the room alias format. An empty input
// produces the zero value.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
