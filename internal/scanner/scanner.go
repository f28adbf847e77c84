/*
 * Copyright (C) 2024 osumem contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package scanner walks a process's readable memory regions looking for a
// fixed byte signature, used as a stable anchor for the pointer chain that
// follows (ASLR moves the base address every run, but the bytes at it
// don't). Regions are read in overlapping windows so a match straddling a
// window boundary is never missed.
package scanner

import (
	"bytes"
	"log"

	"github.com/snapcore/snapd/gadget/quantity"

	"github.com/anonymouse64/osumem/internal/memmap"
	"github.com/anonymouse64/osumem/internal/remoteread"
)

// ScanChunkSize is the size of each scan window.
const ScanChunkSize = 64 * 1024

// Pattern is the 6-byte signature this module looks for. There is no
// wildcard mask support: historical masked variants of this scan are dead
// code and were not carried forward.
var Pattern = []byte{0xF8, 0x01, 0x74, 0x04, 0x83, 0x65}

// Reader is the subset of remoteread.Reader the scanner needs.
type Reader interface {
	Read(remoteAddr uint64, buf []byte) error
}

// Scan walks regions in order, reading each in ScanChunkSize windows that
// overlap by len(pattern)-1 bytes so a match straddling a window boundary is
// still found. It returns the remote address of the first match. A read
// failure on an individual window is skipped, not fatal — regions can race
// with the target's own allocator. verbose, when non-nil, receives one line
// per region describing how much of it was scanned.
func Scan(reader Reader, regions []memmap.Region, pattern []byte, verbose *log.Logger) (uint64, bool, error) {
	if len(pattern) == 0 {
		return 0, false, nil
	}

	windowReadLen := ScanChunkSize + len(pattern) - 1
	pool := remoteread.NewBufferPool(windowReadLen)

	for _, region := range regions {
		var scanned uint64

		for offset := uint64(0); offset < region.Length; offset += ScanChunkSize {
			readLen := windowReadLen
			if remaining := region.Length - offset; remaining < uint64(readLen) {
				readLen = int(remaining)
			}
			if readLen < len(pattern) {
				break
			}

			buf := pool.Get()[:readLen]
			err := reader.Read(region.Start+offset, buf)
			if err != nil {
				pool.Put(buf[:windowReadLen])
				continue
			}

			idx := bytes.Index(buf, pattern)
			pool.Put(buf[:windowReadLen])
			scanned += uint64(readLen)

			if idx >= 0 {
				if verbose != nil {
					verbose.Printf("signature found after scanning %s of region 0x%x", quantity.Size(scanned).IECString(), region.Start)
				}
				return region.Start + offset + uint64(idx), true, nil
			}
		}

		if verbose != nil && scanned > 0 {
			verbose.Printf("scanned %s of region 0x%x-0x%x, no match", quantity.Size(scanned).IECString(), region.Start, region.End())
		}
	}

	return 0, false, nil
}
