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

// The dispatcher loop: pick the next ready process, check for a
// deliverable signal, context-switch into it, and act on whatever
// trap code comes back. Runs entirely on the caller's own
// goroutine - this is the kernel's single thread of control; every
// other goroutine in the process is either a blocked user process or
// an I/O pump feeding one of the IRQ channels.

// Run drives the dispatcher forever and never returns - callers
// normally run this in its own goroutine, or not at all for
// Step-driven tests.
func (k *Kernel) Run() {
	for {
		k.Step()
	}
}

// Step runs exactly one dispatch cycle: pick, maybe-signal,
// context-switch, and handle the result. Exported so tests can drive
// the kernel deterministically alongside ManualPIT/ManualKeyboard.
func (k *Kernel) Step() {
	idx := k.selectNext()
	k.current = idx
	k.table[idx].state = Running

	// A preempted process cannot take a signal frame on this entry -
	// its goroutine is not parked waiting for a resume, so the frame
	// would have nowhere to land. The signal stays pending and is
	// delivered at its next syscall-trap dispatch instead.
	var sig *sigFrame
	if !k.table[idx].preempted {
		sig = k.prepareSignal(idx)
	}
	code := k.contextSwitch(idx, sig)
	k.tracer.dispatch(idx, &k.table[idx], code)

	switch code {
	case TimerInt:
		k.ready(idx)
		k.handleTimerInt()
	case KbdInt:
		k.ready(idx)
		k.handleKbdInt()
	default:
		k.dispatchRequest(idx, code)
	}
}

// selectNext implements the idle-skip rule: pop ready_q's head, and
// if it is the idle PCB while other processes are
// still waiting behind it, re-enqueue idle and try again. Idle only
// ever actually runs when it is the sole entry in ready_q.
func (k *Kernel) selectNext() int {
	for {
		idx := k.next()
		if k.table[idx].pid == IdleProcPID && k.readyQ.size > 0 {
			k.ready(idx)
			continue
		}
		return idx
	}
}

// dispatchRequest handles a genuine syscall trap: idx's own args were
// already stashed by contextSwitch before it returned code.
func (k *Kernel) dispatchRequest(idx int, code int) {
	p := &k.table[idx]
	switch code {
	case Create:
		k.handleCreate(idx, p.args.(createArgs))
	case Yield:
		k.ready(idx)
	case StopReq:
		k.handleStop(idx)
	case GetPID:
		p.rc = p.pid
		k.ready(idx)
	case Puts:
		k.handlePuts(idx, p.args.(putsArgs))
	case SleepReq:
		k.handleSleep(idx, p.args.(sleepArgs))
	case Send:
		k.handleSend(idx, p.args.(sendArgs))
	case Recv:
		k.handleRecv(idx, p.args.(*recvArgs))
	case SigHandlerReq:
		k.handleSigHandlerReq(idx, p.args.(sigHandlerArgs))
	case SigReturnReq:
		k.handleSigReturn(idx, p.args.(sigReturnArgs))
	case SigKillReq:
		k.handleSigKillReq(idx, p.args.(sigKillArgs))
	case SigWaitReq:
		k.handleSigWait(idx)
	case DevOpen:
		k.handleDevOpen(idx, p.args.(devOpenArgs))
	case DevClose:
		k.handleDevClose(idx, p.args.(devCloseArgs))
	case DevRead:
		k.handleDevRead(idx, p.args.(devReadArgs))
	case DevWrite:
		k.handleDevWrite(idx, p.args.(devWriteArgs))
	case DevIoctl:
		k.handleDevIoctl(idx, p.args.(devIoctlArgs))
	default:
		k.invariant(false, "unknown request code %d from pcb=%d", code, idx)
	}
}

// handleTimerInt services the forced TIMER_INT trap: advance the
// sleep queue and retry any parked device reads. The idle process is
// never itself woken specially here - it is always already sitting in
// ready_q, since idle is never removed from the table, and
// selectNext's idle-skip rule decides when it actually runs.
func (k *Kernel) handleTimerInt() {
	if k.tick() {
		k.wake()
	}
	k.retryDevWaiters()
}

// handleKbdInt services the forced KBD_INT trap: k.pendingScan holds the raw code contextSwitch just received. Every
// attached device that wants first look at it (the console's
// keyboard-backed input, typically) gets fed before waiters retry.
func (k *Kernel) handleKbdInt() {
	for _, d := range k.devices {
		if sf, ok := d.(ScanFeeder); ok {
			sf.Feed(k.pendingScan)
		}
	}
	k.retryDevWaiters()
}

// handlePuts services the PUTS request, writing directly to the
// kernel's console sink rather than through the DEV_* gateway - PUTS
// is the dedicated diagnostic/console syscall, not a normal opened
// device.
func (k *Kernel) handlePuts(idx int, a putsArgs) {
	p := &k.table[idx]
	n, _ := k.console.Write([]byte(a.Str))
	p.rc = n
	k.ready(idx)
}
