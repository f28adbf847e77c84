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

// Package winepath turns a running Wine process into an absolute Linux
// songs-root path. It never parses the Wine registry with a real INI
// parser: the observed layout only ever needs a line-oriented two-phase
// scan (subkey line, then the following lines), and that is all this
// package does.
package winepath

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// registrySubkeys are matched case-insensitively against each registry
// line; either indicates the start of the osu! file-association block
// that is followed by the install path. Wine escapes every backslash in
// its .reg text, so these must carry doubled backslashes to match the
// on-disk form, not the single backslashes of the Windows key name.
var registrySubkeys = []string{
	"osu\\\\shell\\\\open\\\\command",
	"osustable.file.osz\\\\shell\\\\open\\\\command",
}

// loginuidNobody is what /proc/<pid>/loginuid reads as when the process
// has no login session (e.g. started by a display manager or init
// directly, never through a PAM login). The fallback to uid 1000 below is
// not a principled default: it is a preserved quirk of the original
// implementation, applied by LoginUID.
const loginuidNobody = "4294967295"
const fallbackUID = "1000"

// DiscoverPrefix finds the WinePrefix for pid: first by reading
// WINEPREFIX out of its environment, then, if absent, by falling back to
// <home>/.wine for the process's owning user.
func DiscoverPrefix(pid int) (string, error) {
	environ, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", pid))
	if err == nil {
		for _, rec := range strings.Split(string(environ), "\x00") {
			if v, ok := strings.CutPrefix(rec, "WINEPREFIX="); ok && v != "" {
				return v, nil
			}
		}
	}

	_, home, err := UserForPid(pid)
	if err != nil {
		return "", fmt.Errorf("no WINEPREFIX in environment and user lookup failed: %w", err)
	}
	return filepath.Join(home, ".wine"), nil
}

// LoginUID reads /proc/<pid>/loginuid and returns it as a decimal string,
// applying the documented fallback when no login session is attached.
func LoginUID(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/loginuid", pid))
	if err != nil {
		return "", err
	}
	uid := strings.TrimSpace(string(data))
	if uid == loginuidNobody {
		uid = fallbackUID
	}
	return uid, nil
}

// UserForPid resolves the username and home directory that own pid, via
// loginuid and /etc/passwd.
func UserForPid(pid int) (username, home string, err error) {
	uid, err := LoginUID(pid)
	if err != nil {
		return "", "", err
	}
	return lookupPasswd(uid)
}

func lookupPasswd(uid string) (username, home string, err error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	return parsePasswd(f, uid)
}

func parsePasswd(r io.Reader, uid string) (username, home string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 6 {
			continue
		}
		if fields[2] == uid {
			return fields[0], fields[5], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	return "", "", fmt.Errorf("uid %s not found in /etc/passwd", uid)
}

// ExtractInstallPath searches system.reg then user.reg inside prefix for
// the osu! file-association subkey and returns the Windows-style install
// path recorded there (e.g. `C:\Games\osu!\`).
func ExtractInstallPath(prefix string) (string, error) {
	for _, name := range []string{"system.reg", "user.reg"} {
		f, err := os.Open(filepath.Join(prefix, name))
		if err != nil {
			continue
		}
		path, ok, err := scanRegistry(f)
		f.Close()
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("osu! install path not found in system.reg or user.reg under %s", prefix)
}

func scanRegistry(r io.Reader) (string, bool, error) {
	scanner := bufio.NewScanner(r)
	inBlock := false
	for scanner.Scan() {
		line := scanner.Text()

		if !inBlock {
			lower := strings.ToLower(line)
			for _, subkey := range registrySubkeys {
				if strings.Contains(lower, subkey) {
					inBlock = true
					break
				}
			}
			continue
		}

		idx := strings.Index(line, "osu!.exe")
		if idx < 0 {
			continue
		}
		truncated := line[:idx]
		colon := strings.LastIndex(truncated, `:\`)
		if colon < 1 {
			continue
		}
		// the value is Wine-escaped text; undo the doubling of backslashes
		return strings.ReplaceAll(truncated[colon-1:], `\\`, `\`), true, nil
	}
	if err := scanner.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// MapDriveLetter turns a Windows-style path with a drive letter (e.g.
// `C:\Games\osu!\`) into its Unix equivalent under <prefix>/dosdevices,
// following the drive symlink if dosdevices/<letter> resolves through
// one. It also returns knownGoodLen, the length of the prefix of the
// returned path that is guaranteed to exist on disk as spelled (the
// resolved drive root) — the rest, the path components carried over
// verbatim from the Windows-side string, may still need case repair.
func MapDriveLetter(prefix, winPath string) (resolved string, knownGoodLen int, err error) {
	if len(winPath) < 2 || winPath[1] != ':' {
		return "", 0, fmt.Errorf("not a drive-letter path: %q", winPath)
	}
	letter := strings.ToLower(winPath[:1])
	rest := strings.ReplaceAll(winPath[2:], `\`, "/")

	driveRoot := canonicalize(filepath.Join(prefix, "dosdevices", letter+":"))
	return driveRoot + rest, len(driveRoot), nil
}

// canonicalize follows path through any symlinks it passes through.
// A path that does not exist yet, or is not a symlink, is returned as-is:
// the caller may still want to walk it with RepairPath.
func canonicalize(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

// ConfigLookup reads <installPath>/osu!.<username>.cfg for its
// BeatmapDirectory setting, normalized to forward slashes.
func ConfigLookup(installPath, username string) (string, error) {
	cfgPath := filepath.Join(installPath, fmt.Sprintf("osu!.%s.cfg", username))
	f, err := os.Open(cfgPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	const key = "BeatmapDirectory = "
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, key); ok {
			rest = strings.TrimRight(rest, " \t\r")
			return strings.ReplaceAll(rest, `\`, "/"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("BeatmapDirectory not found in %s", cfgPath)
}

// RepairPath walks candidate's segments starting at byte offset pos (the
// length of a prefix already known to exist on disk) and substitutes the
// on-disk spelling for any segment that exists only under a different
// case. It fails with an error if some segment has no case-insensitive
// match in its parent directory.
func RepairPath(candidate string, pos int) (string, error) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(candidate) {
		pos = len(candidate)
	}

	current := strings.TrimRight(candidate[:pos], "/")
	remainder := candidate[pos:]

	for _, raw := range strings.Split(remainder, "/") {
		seg := strings.Trim(raw, " \t.")
		if seg == "" {
			continue
		}

		direct := current + "/" + seg
		if _, err := os.Lstat(direct); err == nil {
			current = direct
			continue
		}

		entries, err := os.ReadDir(current)
		if err != nil {
			return "", fmt.Errorf("path not found: %s", direct)
		}
		matched := ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), seg) {
				matched = e.Name()
				break
			}
		}
		if matched == "" {
			return "", fmt.Errorf("path not found: %s", direct)
		}
		current = current + "/" + matched
	}

	return current, nil
}

// Result is everything Resolve derived about the running osu! instance's
// Wine environment.
type Result struct {
	Prefix      string
	InstallPath string
	SongsRoot   string
}

// Resolve runs the full chain: WinePrefix discovery, registry lookup,
// drive-letter mapping, config lookup, and case-insensitive path repair,
// for the process pid. Any step's failure is returned verbatim; the
// caller (the Control Loop) treats all of them as PathResolveFailure and
// leaves SongsRoot unresolved for this tick.
func Resolve(pid int) (*Result, error) {
	prefix, err := DiscoverPrefix(pid)
	if err != nil {
		return nil, fmt.Errorf("discover wineprefix: %w", err)
	}

	winInstallPath, err := ExtractInstallPath(prefix)
	if err != nil {
		return nil, fmt.Errorf("extract install path: %w", err)
	}

	installPath, _, err := MapDriveLetter(prefix, winInstallPath)
	if err != nil {
		return nil, fmt.Errorf("map install path: %w", err)
	}

	username, _, err := UserForPid(pid)
	if err != nil {
		return nil, fmt.Errorf("resolve owning user: %w", err)
	}

	beatmapDir, err := ConfigLookup(installPath, username)
	if err != nil {
		return nil, fmt.Errorf("config lookup: %w", err)
	}

	var songsRoot string
	var repairFrom int
	if len(beatmapDir) >= 2 && beatmapDir[1] == ':' {
		var knownGoodLen int
		songsRoot, knownGoodLen, err = MapDriveLetter(prefix, strings.ReplaceAll(beatmapDir, "/", `\`))
		if err != nil {
			return nil, fmt.Errorf("map beatmap directory: %w", err)
		}
		repairFrom = knownGoodLen
	} else {
		songsRoot = filepath.Join(installPath, beatmapDir)
		repairFrom = len(installPath)
	}

	repaired, err := RepairPath(songsRoot, repairFrom)
	if err != nil {
		return nil, fmt.Errorf("repair songs root: %w", err)
	}

	return &Result{
		Prefix:      prefix,
		InstallPath: installPath,
		SongsRoot:   repaired,
	}, nil
}
