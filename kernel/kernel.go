// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package kernel

import (
	"io"
	"log"
	"os"
	"reflect"
	"runtime"
)

// ProcFunc is the entry point of a user process: a Go function that
// drives its own logical thread of control by calling Proc's syscall
// methods. It is the Go-native replacement for "a program counter
// into a loaded binary" - there is no instruction memory here, the
// process body *is* the code.
type ProcFunc func(p *Proc)

// Config controls kernel construction. Fields are the boot-time
// knobs real hardware takes through IDT vectors and PIT programming -
// here they configure the Go abstractions that stand in for that
// hardware (see clock.go).
type Config struct {
	// ProcSz is the fixed size of the process table.
	ProcSz int
	// PIT is the timer-tick source; if nil, NewManualPIT() is used
	// (deterministic, test-friendly - see clock.go).
	PIT PIT
	// Keyboard is the scan-code source; if nil, NewManualKeyboard() is used.
	Keyboard Keyboard
	// Devices backs the DEV_* gateway; may be nil (no devices attached).
	Devices []Device
	// Console receives PUTS output; defaults to os.Stdout.
	Console io.Writer
	// Trace, if non-nil, receives structured per-dispatch trace lines.
	Trace io.Writer
	// TickMS is the millisecond duration of one PIT tick.
	// Defaults to 10 if <= 0.
	TickMS int
}

// Kernel holds all process-wide dispatcher state: the PCB arena, the
// ready/stop/sleep queues, and the two IRQ channels the context
// switch primitive selects on. No locking is required internally
// because the dispatcher goroutine is the sole mutator - the kernel
// is single-threaded by construction.
type Kernel struct {
	table []PCB

	readyQ  queue
	stopQ   queue
	sleepQ  queue // delta queue, head = soonest to wake
	anyRecv queue // receivers blocked with src pid 0 ("any sender")

	idleIdx int
	current int

	pit      PIT
	keyboard Keyboard
	devices  []Device
	devWait  []devWaiter
	console  io.Writer

	timerFire   <-chan struct{}
	kbdFire     <-chan byte
	pendingScan byte

	tracer *Tracer

	nextPID int
	tickMS  int
}

// New constructs a Kernel with an idle process already installed and
// waiting on ready_q. procSz defaults to 32 if cfg.ProcSz <= 0.
func New(cfg Config) *Kernel {
	sz := cfg.ProcSz
	if sz <= 0 {
		sz = 32
	}
	pit := cfg.PIT
	if pit == nil {
		pit = NewManualPIT()
	}
	kbd := cfg.Keyboard
	if kbd == nil {
		kbd = NewManualKeyboard()
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	k := &Kernel{
		table:     newPCBTable(sz),
		readyQ:    newQueue(),
		stopQ:     newQueue(),
		sleepQ:    newQueue(),
		anyRecv:   newQueue(),
		pit:       pit,
		keyboard:  kbd,
		devices:   cfg.Devices,
		console:   console,
		timerFire: pit.Ticks(),
		kbdFire:   kbd.ScanCodes(),
		tracer:    NewTracer(cfg.Trace),
		nextPID:   1,
		tickMS:    cfg.TickMS,
	}
	for i := range k.table {
		k.seedStopSlot(i)
	}
	k.idleIdx = k.createLocked(idleLoop, 0, IdleProcPID)
	k.ready(k.idleIdx)
	return k
}

// seedStopSlot is used only at construction, to seed every slot onto
// stop_q before any process exists.
func (k *Kernel) seedStopSlot(idx int) {
	k.table[idx].pid = InvalidPID
	k.table[idx].state = Stop
	k.pushBack(&k.stopQ, idx)
}

func idleLoop(p *Proc) {
	for {
		p.Yield()
	}
}

// Snapshot returns a read-only diagnostic view of every PCB slot that
// is not Unused - stopped slots included, reported in state Stop - for
// tests asserting queue bookkeeping.
func (k *Kernel) Snapshot() []ProcSnapshot {
	out := make([]ProcSnapshot, 0, len(k.table))
	for i := range k.table {
		p := &k.table[i]
		if p.state == Unused {
			continue
		}
		out = append(out, ProcSnapshot{
			PID:           p.pid,
			State:         p.state,
			SigPendMask:   p.sigPendMask,
			SigIgnoreMask: p.sigIgnoreMask,
			Entry:         entryName(p.fn),
		})
	}
	return out
}

// entryName resolves a ProcFunc to its declared function name for
// Snapshot's diagnostic output.
func entryName(fn ProcFunc) string {
	if fn == nil {
		return ""
	}
	rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if rf == nil {
		return ""
	}
	return rf.Name()
}

// invariant halts on an unrecoverable internal contradiction, such as
// a PCB found linked into two queues at once.
func (k *Kernel) invariant(cond bool, format string, args ...any) {
	if !cond {
		log.Fatalf("kernel invariant violated: "+format, args...)
	}
}
