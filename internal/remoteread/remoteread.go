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

// Package remoteread is the thin layer between the OS Bridge and the
// signature scanner / pointer walker. It never retries a failed read; the
// caller decides what a failure means (discard a base anchor, skip a scan
// window, abort a pointer walk).
package remoteread

import "sync"

// BufferPool rents fixed-size byte slices so the scanner and pointer walker
// avoid a per-tick allocation. Buffers are always returned to the pool they
// came from, including on every read-failure exit path.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool returns a pool of buffers of exactly size bytes.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get rents a buffer of this pool's fixed size.
func (p *BufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return (*b)[:p.size]
}

// Put returns a buffer to the pool. Callers must not use buf after calling
// Put.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Reader reads bytes out of a single target process, delegating the actual
// syscall to ReadFn (golang.org/x/sys/unix.ProcessVMReadv by way of
// internal/osbridge in production, a fake in tests).
type Reader struct {
	PID    int
	ReadFn func(pid int, remoteAddr uint64, buf []byte) error
}

// Read fills buf with len(buf) bytes from remoteAddr in the target's address
// space. On failure buf's contents are unspecified; the caller should
// discard it, not inspect it.
func (r Reader) Read(remoteAddr uint64, buf []byte) error {
	return r.ReadFn(r.PID, remoteAddr, buf)
}
