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
	"fmt"
	"io"
)

// Tracer generates a per-dispatch execution trace, the Go-native
// replacement for the emulator's per-instruction Tracer (same name,
// same Fprintf-to-io.Writer shape) retargeted from opcode fetch/
// decode/execute to trap code/state/rc.
type Tracer struct {
	out      io.Writer
	sequence uint64
}

// NewTracer creates a tracer writing to out. A nil out yields a
// Tracer whose dispatch calls are all no-ops, so Kernel never needs
// to branch on whether tracing is enabled.
func NewTracer(out io.Writer) *Tracer {
	return &Tracer{out: out}
}

// dispatch records one dispatcher cycle: which PCB ran, what trap
// code it returned with, its state and rc afterward.
func (t *Tracer) dispatch(idx int, p *PCB, code int) {
	if t.out == nil {
		return
	}
	t.sequence++
	fmt.Fprintf(t.out, "#%06d pcb=%d pid=%d code=%s state=%s rc=%d\n",
		t.sequence, idx, p.pid, codeName(code), p.state, p.rc)
}

func codeName(code int) string {
	switch code {
	case Create:
		return "CREATE"
	case Yield:
		return "YIELD"
	case StopReq:
		return "STOP"
	case GetPID:
		return "GETPID"
	case Puts:
		return "PUTS"
	case SleepReq:
		return "SLEEP"
	case Send:
		return "SEND"
	case Recv:
		return "RECV"
	case SigHandlerReq:
		return "SIG_HANDLER"
	case SigReturnReq:
		return "SIG_RETURN"
	case SigKillReq:
		return "SIG_KILL"
	case SigWaitReq:
		return "SIG_WAIT"
	case DevOpen:
		return "DEV_OPEN"
	case DevClose:
		return "DEV_CLOSE"
	case DevRead:
		return "DEV_READ"
	case DevWrite:
		return "DEV_WRITE"
	case DevIoctl:
		return "DEV_IOCTL"
	case TimerInt:
		return "TIMER_INT"
	case KbdInt:
		return "KBD_INT"
	default:
		return fmt.Sprintf("code(%d)", code)
	}
}
