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

// Package osumem is a live external memory inspector for a running
// osu!.exe process under Wine: it locates the process, scans its memory
// for a stable signature, walks a fixed pointer chain to the currently
// loaded beatmap's folder and file names, and resolves those into a real
// Linux path via the Wine prefix the process is running under.
package osumem

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/anonymouse64/osumem/internal/hooks"
	"github.com/anonymouse64/osumem/internal/locator"
	"github.com/anonymouse64/osumem/internal/memmap"
	"github.com/anonymouse64/osumem/internal/osbridge"
	"github.com/anonymouse64/osumem/internal/pointerwalk"
	"github.com/anonymouse64/osumem/internal/remoteread"
	"github.com/anonymouse64/osumem/internal/scanner"
	"github.com/anonymouse64/osumem/internal/sink"
	"github.com/anonymouse64/osumem/internal/winepath"
)

func init() {
	locator.IsAlive = osbridge.IsAlive
}

// Options configures Start. The zero value is valid; unset fields take
// the defaults noted below.
type Options struct {
	// RunOnce stops the loop and returns after the first successful
	// emit, instead of running until stop is set.
	RunOnce bool
	// WriteToFile enables the Change Sink: FilePath is overwritten
	// atomically on every emitted change.
	WriteToFile bool
	// FilePath is the Change Sink's output path. Default /tmp/osu_path.
	FilePath string
	// PollInterval is the sleep between ticks while actively tracking a
	// target. Default 500ms.
	PollInterval time.Duration
	// IdleInterval is the sleep between ticks while no target is found.
	// Default 300ms.
	IdleInterval time.Duration
	// ScanBackoff is the sleep after a signature scan misses. Default 3s.
	ScanBackoff time.Duration
	// Logger receives non-fatal diagnostics (target waiting, scan
	// misses, sink/hook failures). Default: stderr logger.
	Logger *log.Logger
	// OnChange, if set, is invoked with every newly emitted Report, in
	// addition to the file sink.
	OnChange func(Report)
	// ChangeHookScript, if set, is run with the new full path as its
	// only argument on every emitted change. See internal/hooks.
	ChangeHookScript string
}

func (o Options) withDefaults() Options {
	if o.FilePath == "" {
		o.FilePath = "/tmp/osu_path"
	}
	if o.PollInterval == 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.IdleInterval == 0 {
		o.IdleInterval = 300 * time.Millisecond
	}
	if o.ScanBackoff == 0 {
		o.ScanBackoff = 3 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return o
}

// Report is a single observed beatmap location.
type Report struct {
	SongsRoot    string
	RelativePath string
}

// FullPath joins SongsRoot and RelativePath with a forward slash. If
// SongsRoot is empty (the Wine Path Resolver never succeeded for this
// process), FullPath is just RelativePath.
func (r Report) FullPath() string {
	if r.SongsRoot == "" {
		return r.RelativePath
	}
	return r.SongsRoot + "/" + r.RelativePath
}

type driverState int

const (
	stateNoTarget driverState = iota
	stateTargetFound
	stateScanned
)

// Start runs the Control Loop until stop is set, ctx is cancelled, or
// (with Options.RunOnce) the first successful emit. It returns the last
// observed Report, which may be nil if nothing was ever observed.
func Start(ctx context.Context, opts Options, stop *atomic.Bool) (*Report, error) {
	opts = opts.withDefaults()

	loc := locator.New()

	var (
		state         = stateNoTarget
		pid           int
		baseAnchor    uint64
		wine          *winepath.Result
		wineAttempted bool
		walker        *pointerwalk.Walker
		lastEmitted   string
		lastReport    *Report
		warnedMissing bool
	)

	for {
		if stop.Load() || ctx.Err() != nil {
			return lastReport, nil
		}

		switch state {
		case stateNoTarget:
			found, status := loc.Locate()
			if status == locator.Missing {
				if !warnedMissing {
					opts.Logger.Printf("waiting for %s...", locator.TargetComm)
					warnedMissing = true
				}
				if !sleepOrStop(ctx, stop, opts.IdleInterval) {
					return lastReport, nil
				}
				continue
			}

			warnedMissing = false
			pid = found
			wine = nil
			wineAttempted = false
			baseAnchor = 0
			walker = nil
			state = stateTargetFound

		case stateTargetFound:
			reader := remoteread.Reader{PID: pid, ReadFn: osbridge.ReadRemote}

			regions, err := memmap.Regions(pid)
			if err != nil {
				opts.Logger.Printf("pid %d: reading memory map failed: %v", pid, err)
				state = stateNoTarget
				continue
			}

			addr, found, err := scanner.Scan(reader, regions, scanner.Pattern, nil)
			if err != nil || !found {
				opts.Logger.Printf("pid %d: signature not found, retrying in %s", pid, opts.ScanBackoff)
				if !sleepOrStop(ctx, stop, opts.ScanBackoff) {
					return lastReport, nil
				}
				continue
			}

			baseAnchor = addr
			walker = pointerwalk.New(reader)

			// PathResolveFailure is not retried (spec.md §7): attempt this
			// exactly once per process incarnation, regardless of outcome,
			// instead of re-running it on every scan-miss/walker-abort cycle.
			if !wineAttempted {
				wineAttempted = true
				if resolved, err := winepath.Resolve(pid); err == nil {
					wine = resolved
				} else {
					opts.Logger.Printf("pid %d: wine path resolution failed, songs root left unresolved: %v", pid, err)
				}
			}

			state = stateScanned

		case stateScanned:
			if !osbridge.IsAlive(pid) {
				state = stateNoTarget
				continue
			}

			relPath, err := walker.Walk(baseAnchor)
			if err != nil {
				state = stateTargetFound
				if !sleepOrStop(ctx, stop, opts.ScanBackoff) {
					return lastReport, nil
				}
				continue
			}

			if relPath != lastEmitted {
				lastEmitted = relPath
				songsRoot := ""
				if wine != nil {
					songsRoot = wine.SongsRoot
				}
				report := Report{SongsRoot: songsRoot, RelativePath: relPath}
				lastReport = &report
				emit(opts, report)

				if opts.RunOnce {
					stop.Store(true)
					return &report, nil
				}
			}

			if !sleepOrStop(ctx, stop, opts.PollInterval) {
				return lastReport, nil
			}
		}
	}
}

func emit(opts Options, report Report) {
	if opts.OnChange != nil {
		opts.OnChange(report)
	}
	if opts.WriteToFile {
		if err := sink.Write(opts.FilePath, report.FullPath()); err != nil {
			opts.Logger.Printf("sink write failed: %v", err)
		}
	}
	if opts.ChangeHookScript != "" {
		if err := hooks.OnChange(opts.ChangeHookScript, report.FullPath()); err != nil {
			opts.Logger.Printf("change hook failed: %v", err)
		}
	}
}

// sleepOrStop sleeps for d, waking early on ctx cancellation. It returns
// false if the loop should exit (ctx cancelled, or stop observed right
// after waking), true if it should continue.
func sleepOrStop(ctx context.Context, stop *atomic.Bool, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !stop.Load()
	case <-ctx.Done():
		return false
	}
}
