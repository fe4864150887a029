// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for the credential values that
// mtxchat persists: the account password and the access token. It wraps
// filippo.io/age for the one operation mtxchat needs: seal a value to a
// local x25519 identity and open it again with the same identity.
//
// Ciphertext is base64-encoded so sealed values stay printable in the
// directory store and in SQLite TEXT columns alike.
//
// Key exports:
//
//   - [GenerateIdentity] -- new age x25519 private key in a secret.Buffer
//   - [NewSealer] -- parses a private key into a [Sealer]
//   - [Sealer.Seal] / [Sealer.Open] -- encrypt and decrypt one value
//
// The identity lives next to the sealed values (under a reserved store
// key), so sealing keeps credentials out of plain text on disk and out
// of casual backups; it does not defend against an attacker who can
// read the whole store.
package sealed
