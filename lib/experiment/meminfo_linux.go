// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package experiment

import "golang.org/x/sys/unix"

func systemMemory() (memoryInfo, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return memoryInfo{}, err
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return memoryInfo{
		Total: uint64(si.Totalram) * unit,
		Swap:  uint64(si.Totalswap) * unit,
		Free:  uint64(si.Freeram) * unit,
	}, nil
}
