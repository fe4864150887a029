// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/mtxchat/lib/secret"
)

// GenerateIdentity generates a new age x25519 identity and returns its
// private key (AGE-SECRET-KEY-1... format) in a secret.Buffer. The
// caller must Close the buffer.
func GenerateIdentity() (*secret.Buffer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}

	// The string form is unavoidably on the heap; the buffer is the
	// durable copy.
	privateKey, err := secret.NewFromString(identity.String())
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return privateKey, nil
}

// Sealer seals and opens values for a single age identity. A Sealer is
// immutable and safe for concurrent use.
type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewSealer parses privateKey into a Sealer. The buffer is borrowed,
// not closed.
func NewSealer(privateKey *secret.Buffer) (*Sealer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Sealer{
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

// Recipient returns the age public key (age1...) matching the identity.
func (s *Sealer) Recipient() string {
	return s.recipient.String()
}

// Seal encrypts plaintext to the sealer's own recipient and returns
// base64 ciphertext. Empty plaintext is valid.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal. The returned slice
// is a heap copy; callers holding it for longer than a request should
// move it into a secret.Buffer.
func (s *Sealer) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// ParsePrivateKey validates an age private key held in a secret.Buffer.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
