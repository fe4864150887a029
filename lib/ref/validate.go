// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// validateServer checks that a Matrix server name is minimally valid:
// non-empty, no whitespace or control characters, no Matrix sigils, no
// URL path or scheme separators.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == 0x7f || c == '@' || c == '#' || c == '!' || c == '$' || c == '/' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// validateLocalpart checks a user-typed localpart (user name or room
// name). Matrix historically accepts a wide character set here, so the
// check is structural: non-empty, no whitespace or control characters,
// no ':' (which would be read as the server separator).
func validateLocalpart(localpart, label string) error {
	if localpart == "" {
		return fmt.Errorf("%s is empty", label)
	}
	for i := 0; i < len(localpart); i++ {
		c := localpart[i]
		if c <= ' ' || c == 0x7f {
			return fmt.Errorf("%s %q: invalid character at position %d", label, localpart, i)
		}
		if c == ':' {
			return fmt.Errorf("%s %q must not contain ':'", label, localpart)
		}
	}
	return nil
}

// parsePrefixedID extracts localpart and server from a Matrix identifier
// with the given sigil prefix (@ for user IDs, # for room aliases, !
// for room IDs). The first ':' after the sigil separates the two, so a
// server with a port ("example.org:8448") parses correctly.
func parsePrefixedID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if identifier == "" {
		return "", "", fmt.Errorf("empty %s", kind)
	}
	if identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with '%c'", kind, identifier, sigil)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing ':server' suffix", kind, identifier)
	}
	colonIndex++
	if colonIndex < 2 {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	localpart = identifier[1:colonIndex]
	server = identifier[colonIndex+1:]
	if server == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty server name", kind, identifier)
	}
	return localpart, server, nil
}
