// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

//go:build !linux

package experiment

import "errors"

func systemMemory() (memoryInfo, error) {
	return memoryInfo{}, errors.New("not available on this platform")
}
