// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package biodivine

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by every error that is detected
// before any worker process is spawned: invalid middleware home,
// malformed or exhausted port range, unsupported topology or queue
// kind, etc. Such errors are never retried.
var ErrConfiguration = errors.New("configuration error")

// ConfigErrorf returns an error that wraps ErrConfiguration.
func ConfigErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
