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

// Package sink writes the currently observed beatmap path to a file for
// other processes to pick up. Writes are last-value-wins and atomic: a
// reader never observes a partially written file, unlike the directory-
// check-and-skip behavior of the original osu!-memory tools this module
// replaces. The atomic rename is snapd's osutil.AtomicWriteFile, imported
// directly rather than copied.
package sink

import (
	"fmt"

	"github.com/snapcore/snapd/osutil"
)

// Write overwrites path with "0 <fullPath>", byte-for-byte, no trailing
// newline, via a temp-sibling-and-rename so a concurrent reader never sees
// a truncated file.
func Write(path, fullPath string) error {
	line := fmt.Sprintf("0 %s", fullPath)
	if err := osutil.AtomicWriteFile(path, []byte(line), 0o644, 0); err != nil {
		return fmt.Errorf("write sink file %s: %w", path, err)
	}
	return nil
}
