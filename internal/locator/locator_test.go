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

package locator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type locatorTestSuite struct {
	origRoot    string
	origIsAlive func(int) bool
}

var _ = check.Suite(&locatorTestSuite{})

func (s *locatorTestSuite) SetUpTest(c *check.C) {
	s.origRoot = ProcRoot
	s.origIsAlive = IsAlive
	ProcRoot = c.MkDir()
}

func (s *locatorTestSuite) TearDownTest(c *check.C) {
	ProcRoot = s.origRoot
	IsAlive = s.origIsAlive
}

func (s *locatorTestSuite) writeProc(c *check.C, pid int, comm string) {
	dir := filepath.Join(ProcRoot, strconv.Itoa(pid))
	c.Assert(os.MkdirAll(dir, 0o755), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644), check.IsNil)
}

func (s *locatorTestSuite) TestLocateDiscoversTarget(c *check.C) {
	s.writeProc(c, 1234, "osu!.exe")
	s.writeProc(c, 5678, "firefox")

	l := New()
	pid, status := l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 1234)
}

func (s *locatorTestSuite) TestLocateMissingWhenNoMatch(c *check.C) {
	s.writeProc(c, 5678, "firefox")

	l := New()
	pid, status := l.Locate()
	c.Assert(status, check.Equals, Missing)
	c.Assert(pid, check.Equals, 0)
}

func (s *locatorTestSuite) TestLocateSkipsNonNumericEntries(c *check.C) {
	c.Assert(os.MkdirAll(filepath.Join(ProcRoot, "self"), 0o755), check.IsNil)
	s.writeProc(c, 42, "osu!.exe")

	l := New()
	pid, status := l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 42)
}

func (s *locatorTestSuite) TestLocateReusesCachedPIDWhenAlive(c *check.C) {
	s.writeProc(c, 99, "osu!.exe")
	IsAlive = func(pid int) bool { return pid == 99 }

	l := New()
	pid, status := l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 99)

	// Add a second osu!.exe entry that a rescan would reach first (procfs
	// entries are read in name order, "100" before "99"); a cached PID that
	// is still alive and still reports osu!.exe must not trigger a rescan.
	s.writeProc(c, 100, "osu!.exe")

	pid, status = l.Locate()
	c.Assert(status, check.Equals, StillAlive)
	c.Assert(pid, check.Equals, 99)
}

func (s *locatorTestSuite) TestLocateRescansWhenCachedPIDDies(c *check.C) {
	s.writeProc(c, 99, "osu!.exe")
	IsAlive = func(pid int) bool { return false }

	l := New()
	l.Locate()

	s.writeProc(c, 100, "osu!.exe")
	pid, status := l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 100)
}

func (s *locatorTestSuite) TestLocateRescansWhenCachedPIDReusedByOtherProcess(c *check.C) {
	s.writeProc(c, 99, "osu!.exe")
	IsAlive = func(pid int) bool { return true }

	l := New()
	pid, status := l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 99)

	// Same PID, but the kernel reused it for an unrelated process: comm no
	// longer matches even though signal-zero still succeeds.
	s.writeProc(c, 99, "firefox")
	s.writeProc(c, 150, "osu!.exe")

	pid, status = l.Locate()
	c.Assert(status, check.Equals, DiscoveredThisTick)
	c.Assert(pid, check.Equals, 150)
}

func (s *locatorTestSuite) TestResetForcesRescan(c *check.C) {
	s.writeProc(c, 7, "osu!.exe")
	IsAlive = func(pid int) bool { return true }

	l := New()
	l.Locate()
	l.Reset()

	c.Assert(os.RemoveAll(filepath.Join(ProcRoot, "7")), check.IsNil)
	_, status := l.Locate()
	c.Assert(status, check.Equals, Missing)
}
