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

package osumem

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/check.v1"

	"github.com/anonymouse64/osumem/internal/locator"
)

func Test(t *testing.T) { check.TestingT(t) }

type osumemTestSuite struct {
	origProcRoot string
}

var _ = check.Suite(&osumemTestSuite{})

func (s *osumemTestSuite) SetUpTest(c *check.C) {
	s.origProcRoot = locator.ProcRoot
	locator.ProcRoot = c.MkDir()
}

func (s *osumemTestSuite) TearDownTest(c *check.C) {
	locator.ProcRoot = s.origProcRoot
}

func (s *osumemTestSuite) TestReportFullPathJoinsWithSlash(c *check.C) {
	r := Report{SongsRoot: "/home/user/osu!/Songs", RelativePath: "Artist - Title/map.osu"}
	c.Assert(r.FullPath(), check.Equals, "/home/user/osu!/Songs/Artist - Title/map.osu")
}

func (s *osumemTestSuite) TestReportFullPathWithEmptySongsRoot(c *check.C) {
	r := Report{RelativePath: "Artist - Title/map.osu"}
	c.Assert(r.FullPath(), check.Equals, "Artist - Title/map.osu")
}

func (s *osumemTestSuite) TestOptionsWithDefaults(c *check.C) {
	o := Options{}.withDefaults()
	c.Assert(o.FilePath, check.Equals, "/tmp/osu_path")
	c.Assert(o.PollInterval, check.Equals, 500*time.Millisecond)
	c.Assert(o.IdleInterval, check.Equals, 300*time.Millisecond)
	c.Assert(o.ScanBackoff, check.Equals, 3*time.Second)
	c.Assert(o.Logger, check.NotNil)
}

func (s *osumemTestSuite) TestOptionsWithDefaultsPreservesSetFields(c *check.C) {
	o := Options{FilePath: "/custom/path", PollInterval: time.Second}.withDefaults()
	c.Assert(o.FilePath, check.Equals, "/custom/path")
	c.Assert(o.PollInterval, check.Equals, time.Second)
	c.Assert(o.IdleInterval, check.Equals, 300*time.Millisecond)
}

func (s *osumemTestSuite) TestSleepOrStopReturnsFalseOnCancelledContext(c *check.C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stop atomic.Bool
	c.Assert(sleepOrStop(ctx, &stop, time.Second), check.Equals, false)
}

func (s *osumemTestSuite) TestSleepOrStopReturnsFalseWhenStopSetAfterWaking(c *check.C) {
	var stop atomic.Bool
	stop.Store(true)
	c.Assert(sleepOrStop(context.Background(), &stop, time.Millisecond), check.Equals, false)
}

func (s *osumemTestSuite) TestSleepOrStopReturnsTrueWhenNeitherFires(c *check.C) {
	var stop atomic.Bool
	c.Assert(sleepOrStop(context.Background(), &stop, time.Millisecond), check.Equals, true)
}

// TestStartReturnsNilWhenStoppedWhileIdle exercises the NoTarget branch of
// the Control Loop end to end: no osu!.exe process ever appears in procfs,
// and setting the stop flag from another goroutine causes Start to return
// promptly with a nil Report.
func (s *osumemTestSuite) TestStartReturnsNilWhenStoppedWhileIdle(c *check.C) {
	var stop atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		stop.Store(true)
	}()

	report, err := Start(context.Background(), Options{IdleInterval: 5 * time.Millisecond}, &stop)
	c.Assert(err, check.IsNil)
	c.Assert(report, check.IsNil)
}

func (s *osumemTestSuite) TestStartReturnsWhenContextCancelledWhileIdle(c *check.C) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var stop atomic.Bool
	report, err := Start(ctx, Options{IdleInterval: 5 * time.Millisecond}, &stop)
	c.Assert(err, check.IsNil)
	c.Assert(report, check.IsNil)
}
