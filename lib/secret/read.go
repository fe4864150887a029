// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFromPath reads a password from a file, or from the first line of
// stdin when path is "-".
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return ReadLine(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)
	return fromRaw(data)
}

// ReadLine reads the first line of reader into a Buffer.
func ReadLine(reader io.Reader) (*Buffer, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading secret: %w", err)
		}
		return nil, fmt.Errorf("secret input is empty")
	}
	line := bytes.Clone(scanner.Bytes())
	defer Zero(line)
	return fromRaw(line)
}

// fromRaw strips the trailing line ending left by "echo > file" and
// copies the rest into locked memory. Interior and leading whitespace
// are part of the password.
func fromRaw(data []byte) (*Buffer, error) {
	trimmed := bytes.TrimRight(data, "\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}
