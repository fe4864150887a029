// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for mtxchat.
//
// Configuration comes from at most one file, named by the --config
// flag (via [LoadFile]) or the MTXCHAT_CONFIG environment variable (via
// [Load]). There is no discovery and no per-field environment override.
// Without a file, [Default] applies.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${MTXCHAT_ROOT}, and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- Store, Server, Sync, Network, Log, Metrics sections
//   - [Default] -- defaults (dir backend, https, matrix.org, 60s poll)
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
package config
