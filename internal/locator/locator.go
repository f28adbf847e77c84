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

// Package locator finds the running osu!.exe process by scanning procfs,
// and re-validates a previously found PID cheaply (one signal-zero and one
// comm read) before paying for a full rescan.
package locator

import (
	"os"
	"strconv"
	"strings"
)

// TargetComm is the exact /proc/<pid>/comm value this module looks for.
const TargetComm = "osu!.exe"

// Status describes the outcome of one Locate call.
type Status int

const (
	// StillAlive means the previously cached PID is still running and
	// was not re-scanned.
	StillAlive Status = iota
	// DiscoveredThisTick means a procfs scan found a new PID this call.
	DiscoveredThisTick
	// Missing means no process named TargetComm is currently running.
	Missing
)

// ProcRoot is the procfs mountpoint. Overridden in tests.
var ProcRoot = "/proc"

// IsAlive is the OS Bridge's liveness check, injected so Locate doesn't
// import internal/osbridge directly and the two packages stay decoupled.
var IsAlive = func(pid int) bool { return false }

// Locator remembers the last PID it found across calls so a live target
// doesn't pay for a procfs scan every tick.
type Locator struct {
	pid int
}

// New returns a Locator with no cached PID.
func New() *Locator {
	return &Locator{}
}

// Locate returns the target PID and its status; the PID is 0 when the
// status is Missing. If the cached PID is still alive and still reports
// TargetComm, it is returned without a rescan. A PID can be reused by an
// unrelated process between ticks; signal-zero alone can't detect that, so
// the comm check guards against retaining a stale, reused PID past the
// tick where it diverges.
func (l *Locator) Locate() (pid int, status Status) {
	if l.pid != 0 && IsAlive(l.pid) {
		if comm, err := readComm(l.pid); err == nil && comm == TargetComm {
			return l.pid, StillAlive
		}
	}

	l.pid = 0
	entries, err := os.ReadDir(ProcRoot)
	if err != nil {
		return 0, Missing
	}

	for _, e := range entries {
		pid, ok := parsePID(e.Name())
		if !ok {
			continue
		}
		comm, err := readComm(pid)
		if err != nil {
			continue
		}
		if comm == TargetComm {
			l.pid = pid
			return pid, DiscoveredThisTick
		}
	}

	return 0, Missing
}

// Reset forgets the cached PID, forcing a full rescan on the next Locate.
func (l *Locator) Reset() {
	l.pid = 0
}

func parsePID(name string) (int, bool) {
	pid, err := strconv.Atoi(name)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func readComm(pid int) (string, error) {
	data, err := os.ReadFile(ProcRoot + "/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n\r\t "), nil
}
