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

// Package commands holds small os/exec helpers shared by the CLI layer.
// osumem's core never execs anything; this package exists for
// cmd/osumem-watch, which with --sudo-if-denied re-execs itself under sudo
// whenever it is not already running as root (see spec.md §5,
// "Privilege").
package commands

import (
	"fmt"
	"os/exec"
	"os/user"
)

var userCurrent = user.Current

var (
	initialized bool
	cachedUser  *user.User
	cachedErr   error
)

func currentUser() (*user.User, error) {
	if !initialized {
		cachedUser, cachedErr = userCurrent()
		initialized = true
	}
	return cachedUser, cachedErr
}

// ResetInitialized clears the cached current-user lookup. Only used by tests.
func ResetInitialized() {
	initialized = false
	cachedUser = nil
	cachedErr = nil
}

// AddSudoIfNeeded will prefix the given exec.Cmd with sudo if the current user
// is not root.
func AddSudoIfNeeded(cmd *exec.Cmd, sudoArgs ...string) error {
	current, err := currentUser()
	if err != nil {
		return err
	}
	if current.Uid != "0" {
		sudoPath, err := exec.LookPath("sudo")
		if err != nil {
			return fmt.Errorf("cannot read the target process's memory without running as root or without sudo: %s", err)
		}

		// prepend the command with sudo and any sudo args
		cmd.Args = append(
			append([]string{sudoPath}, sudoArgs...),
			cmd.Args...,
		)
		cmd.Path = sudoPath
	}
	return nil
}

// MockUserCurrent is only used for tests. We need to mock the current user
// lookup for consistent tests in other packages.
func MockUserCurrent(f func() (*user.User, error)) (restore func()) {
	old := userCurrent
	userCurrent = f
	ResetInitialized()
	return func() {
		userCurrent = old
		ResetInitialized()
	}
}
