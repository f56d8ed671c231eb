// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import _ "embed"

// DefaultYAML is the set of defaults every experiment file is layered
// on top of.
//
//go:embed config.default.yml
var DefaultYAML []byte
