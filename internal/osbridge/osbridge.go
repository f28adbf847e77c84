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

// Package osbridge is the only place in this module that touches the two
// kernel primitives the rest of the core depends on: signal-zero liveness
// checks and the process_vm_readv scatter/gather cross-process read. No
// other package imports golang.org/x/sys/unix directly.
package osbridge

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// indirections so tests can mock the kernel calls, the same pattern the
// teacher uses for os/user.Current and os/exec.Command.
var (
	killFn           = unix.Kill
	processVMReadvFn = unix.ProcessVMReadv
)

// IsAlive sends signal 0 to pid; this performs no signal delivery, it only
// checks that the kernel would let us signal the process, which implies it
// still exists and is visible to us.
func IsAlive(pid int) bool {
	return killFn(pid, syscall.Signal(0)) == nil
}

// ReadRemote performs a single scatter/gather read of len(buf) bytes from
// remoteAddr in pid's address space into buf. It succeeds iff the kernel
// reports the full number of bytes transferred; any short read or error is
// reported as failure, with no retry at this layer.
func ReadRemote(pid int, remoteAddr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	local := unix.Iovec{Base: &buf[0]}
	local.SetLen(len(buf))

	remote := unix.Iovec{Base: (*byte)(unsafe.Pointer(uintptr(remoteAddr)))}
	remote.SetLen(len(buf))

	n, err := processVMReadvFn(pid, []unix.Iovec{local}, []unix.Iovec{remote}, 0)
	if err != nil {
		return fmt.Errorf("process_vm_readv pid %d addr 0x%x: %w", pid, remoteAddr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("process_vm_readv pid %d addr 0x%x: short read of %d of %d bytes", pid, remoteAddr, n, len(buf))
	}
	return nil
}

// MockKill is only used for tests.
func MockKill(f func(int, syscall.Signal) error) (restore func()) {
	old := killFn
	killFn = f
	return func() { killFn = old }
}

// MockProcessVMReadv is only used for tests.
func MockProcessVMReadv(f func(int, []unix.Iovec, []unix.Iovec, uint) (int, error)) (restore func()) {
	old := processVMReadvFn
	processVMReadvFn = f
	return func() { processVMReadvFn = old }
}
