// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ServerName is a validated Matrix server name (e.g., "matrix.org",
// "chat.example.com:8448"). It appears after the colon in user IDs and
// room aliases, and is the host part of the homeserver URL.
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a raw server name. Returns an
// error if the string is empty or contains whitespace, control
// characters, Matrix sigils, or '/'.
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName is like ParseServerName but panics on error.
func MustParseServerName(raw string) ServerName {
	s, err := ParseServerName(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseServerName(%q): %v", raw, err))
	}
	return s
}

func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is unset.
func (s ServerName) IsZero() bool { return s.name == "" }

// URL returns the homeserver base URL for this server using scheme
// ("https" when empty), e.g. "https://matrix.org".
func (s ServerName) URL(scheme string) string {
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + s.name
}

func (s ServerName) MarshalText() ([]byte, error) {
	return []byte(s.name), nil
}

// UnmarshalText validates the server name. Empty input produces the
// zero value.
func (s *ServerName) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = ServerName{}
		return nil
	}
	parsed, err := ParseServerName(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
