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

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/anonymouse64/osumem"
	"github.com/anonymouse64/osumem/internal/commands"
	"github.com/anonymouse64/osumem/internal/diaglog"
	"github.com/anonymouse64/osumem/internal/xdotool"
)

type cmdWatch struct {
	RunOnce        bool   `long:"run-once" description:"Stop after the first observed beatmap path"`
	WriteFile      bool   `long:"write-file" description:"Write the observed path to a file on every change"`
	FilePath       string `long:"file-path" default:"/tmp/osu_path" description:"Path to write the observed beatmap path to"`
	WaitForWindow  bool   `long:"wait-for-window" description:"Wait for osu!'s main window to appear before polling"`
	SudoIfDenied   bool   `long:"sudo-if-denied" description:"Re-exec under sudo if not already running with sufficient privilege"`
	DiagnosticLog  string `long:"diagnostic-log" description:"Append diagnostics (waiting/scan-miss messages) to this file in addition to stderr"`
	ChangeHook     string `long:"change-hook" description:"Script to run with the new full path as its argument on every change"`
}

var opts cmdWatch
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	if opts.SudoIfDenied {
		if err := reExecWithSudoIfNeeded(); err != nil {
			log.Fatalf("cannot acquire privilege to read target process memory: %v", err)
		}
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if opts.DiagnosticLog != "" {
		f, err := diaglog.EnsureExistsAndOpen(opts.DiagnosticLog, false)
		if err != nil {
			log.Fatalf("cannot open diagnostic log %s: %v", opts.DiagnosticLog, err)
		}
		defer f.Close()
		logger = log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stop atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		stop.Store(true)
		cancel()
	}()

	if opts.WaitForWindow {
		waitForOsuWindow(ctx, logger)
	}

	report, err := osumem.Start(ctx, osumem.Options{
		RunOnce:          opts.RunOnce,
		WriteToFile:      opts.WriteFile,
		FilePath:         opts.FilePath,
		Logger:           logger,
		ChangeHookScript: opts.ChangeHook,
		OnChange: func(r osumem.Report) {
			fmt.Fprintln(os.Stdout, r.FullPath())
		},
	}, &stop)
	if err != nil {
		log.Fatalf("osumem: %v", err)
	}
	if report == nil {
		os.Exit(0)
	}
}

// waitForOsuWindow blocks until osu!'s main window appears, or ctx is
// cancelled, logging but not failing on error: a missing xdotool binary
// or unsupported session just means the loop starts immediately instead
// of waiting.
func waitForOsuWindow(ctx context.Context, logger *log.Logger) {
	xt := xdotool.MakeXDoTool()
	if _, err := xt.WaitForWindow(ctx, xdotool.Window{Name: "osu!"}); err != nil {
		logger.Printf("not waiting for osu! window: %v", err)
	}
}

// reExecWithSudoIfNeeded re-execs the current process under sudo when not
// already running as root. Privilege to process_vm_readv another user's
// process requires same-UID or CAP_SYS_PTRACE (spec.md §5); since the
// target's owning UID isn't known until Process Locator finds it,
// elevating preemptively is simpler than reacting to the first EPERM.
func reExecWithSudoIfNeeded() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(self, os.Args[1:]...)
	if err := commands.AddSudoIfNeeded(cmd); err != nil {
		return err
	}
	if cmd.Path == self {
		// already root; nothing to do
		return nil
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
