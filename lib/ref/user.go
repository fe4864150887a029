// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Matrix user ID (e.g., "@alice:matrix.org").
//
// A Matrix user ID always starts with '@' and contains a ':' separating
// the localpart from the server name. UserID is an immutable value type.
// The zero value is not valid; use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
// Returns an error if the string is empty, doesn't start with '@',
// has an empty localpart, or is missing the ':server' suffix.
func ParseUserID(raw string) (UserID, error) {
	_, server, err := parsePrefixedID(raw, '@', "user ID")
	if err != nil {
		return UserID{}, err
	}
	if err := validateServer(server); err != nil {
		return UserID{}, fmt.Errorf("invalid user ID %q: %w", raw, err)
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is like ParseUserID but panics on error.
func MustParseUserID(raw string) UserID {
	u, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return u
}

// NewUserID builds "@localpart:server" from a user name and server.
// A leading '@' on localpart is tolerated and stripped, since users
// often type their full handle.
func NewUserID(localpart string, server ServerName) (UserID, error) {
	if len(localpart) > 0 && localpart[0] == '@' {
		localpart = localpart[1:]
	}
	if err := validateLocalpart(localpart, "user name"); err != nil {
		return UserID{}, err
	}
	if server.IsZero() {
		return UserID{}, fmt.Errorf("user ID for %q: server name is empty", localpart)
	}
	return UserID{id: "@" + localpart + ":" + server.name}, nil
}

// String returns the full user ID string (e.g., "@alice:matrix.org").
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value (uninitialized).
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the user ID without the '@' prefix and ':server'
// suffix. Returns "" for the zero value.
func (u UserID) Localpart() string {
	localpart, _, _ := parsePrefixedID(u.id, '@', "user ID")
	return localpart
}

// Server returns the server name of the user ID. Returns the zero
// ServerName for the zero value.
func (u UserID) Server() ServerName {
	_, server, err := parsePrefixedID(u.id, '@', "user ID")
	if err != nil {
		return ServerName{}
	}
	return ServerName{name: server}
}

func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.id), nil
}

// UnmarshalText validates the user ID format. An empty input produces
// the zero value (unset user ID).
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
