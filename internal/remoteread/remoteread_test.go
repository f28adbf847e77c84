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

package remoteread_test

import (
	"fmt"
	"testing"

	"github.com/anonymouse64/osumem/internal/remoteread"
	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type remotereadTestSuite struct{}

var _ = check.Suite(&remotereadTestSuite{})

func (s *remotereadTestSuite) TestBufferPoolSizesBuffers(c *check.C) {
	pool := remoteread.NewBufferPool(8)
	buf := pool.Get()
	c.Assert(len(buf), check.Equals, 8)
	pool.Put(buf)

	buf2 := pool.Get()
	c.Assert(len(buf2), check.Equals, 8)
}

func (s *remotereadTestSuite) TestReaderSuccess(c *check.C) {
	r := remoteread.Reader{
		PID: 42,
		ReadFn: func(pid int, addr uint64, buf []byte) error {
			c.Assert(pid, check.Equals, 42)
			c.Assert(addr, check.Equals, uint64(0x1000))
			copy(buf, []byte{1, 2, 3, 4})
			return nil
		},
	}
	buf := make([]byte, 4)
	err := r.Read(0x1000, buf)
	c.Assert(err, check.IsNil)
	c.Assert(buf, check.DeepEquals, []byte{1, 2, 3, 4})
}

func (s *remotereadTestSuite) TestReaderFailure(c *check.C) {
	r := remoteread.Reader{
		PID: 42,
		ReadFn: func(pid int, addr uint64, buf []byte) error {
			return fmt.Errorf("short read")
		},
	}
	buf := make([]byte, 4)
	err := r.Read(0x1000, buf)
	c.Assert(err, check.ErrorMatches, "short read")
}
