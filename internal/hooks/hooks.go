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

// Package hooks runs an optional external script whenever the control loop
// emits a new beatmap path, so map-editing tooling can be notified without
// polling the sink file. It mirrors the sink's failure tolerance: a hook
// that fails is logged, never fatal.
package hooks

import (
	"os"
	"os/exec"
	"path/filepath"
)

// helper function to make testing easier
var execCommandCombinedOutput = func(prog string, args ...string) ([]byte, error) {
	return exec.Command(prog, args...).CombinedOutput()
}

// RunScript runs the named script with args, trying both a script on $PATH
// and one relative to the current working directory, so a hook script can be
// referenced with a bare name from the command line.
func RunScript(fname string, args []string) error {
	path, err := exec.LookPath(fname)
	if err != nil {
		// try the current directory
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path = filepath.Join(cwd, fname)
	}
	// path is either the path found with LookPath, or cwd/fname
	_, err = execCommandCombinedOutput(path, args...)
	return err
}

// OnChange runs the configured hook script with the newly observed full
// path as its only argument. It is a no-op when script is empty.
func OnChange(script, fullPath string) error {
	if script == "" {
		return nil
	}
	return RunScript(script, []string{fullPath})
}

// MockExecCommand is only used for tests.
func MockExecCommand(f func(string, ...string) ([]byte, error)) (restore func()) {
	old := execCommandCombinedOutput
	execCommandCombinedOutput = f
	return func() {
		execCommandCombinedOutput = old
	}
}
