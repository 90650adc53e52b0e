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

const defaultStackSz = 4096

// createLocked reserves a PCB slot from stop_q, allocates its stack,
// and starts its goroutine under the given pid. It is called both by
// the CREATE request handler and once at boot for the idle process.
// Returns the PCB table index, or -1 if stop_q was empty (no free
// slots).
func (k *Kernel) createLocked(entry ProcFunc, stackSz, pid int) int {
	idx := k.popFront(&k.stopQ)
	if idx == -1 {
		return -1
	}
	if stackSz <= 0 {
		stackSz = defaultStackSz
	}

	p := &k.table[idx]
	*p = PCB{
		pid:              pid,
		state:            Ready,
		next:             -1,
		rc:               0,
		stackMem:         make([]byte, stackSz),
		blockedSenders:   newQueue(),
		blockedReceivers: newQueue(),
		ctl:              newProcControl(),
		fn:               entry,
	}
	for i := range p.fdt {
		p.fdt[i] = openFile{devNo: -1}
	}

	proc := &Proc{k: k, pid: p.pid, ctl: p.ctl}
	go func() {
		// contextSwitch always sends the resume response before it
		// waits for the process's next trap, on the assumption that
		// the process is already parked in awaitResume from some
		// earlier trap. A brand new goroutine has no earlier trap to
		// be parked at, so it must manufacture one: block here first,
		// exactly as if entry's first instruction had already trapped
		// in and were now returning. This also means a signal posted
		// to this pid before its first real dispatch is delivered
		// up front, same as any other resume.
		proc.awaitResume()
		entry(proc)
		// A ProcFunc that returns instead of calling StopSelf is
		// treated as an implicit stop, same as falling off the end
		// of main.
		proc.StopSelf()
	}()

	return idx
}

func (k *Kernel) allocPID() int {
	pid := k.nextPID
	k.nextPID++
	return pid
}

// Spawn installs entry as a new process directly, bypassing the
// CREATE syscall's request/response round trip. On real hardware the
// first process is installed by the boot loader before the dispatcher
// ever runs; Spawn is that entry point here - used by
// cmd/xeroskernel's main() and by tests that want a process running
// without another process already alive to issue CREATE for them.
// Returns the new pid, or 0 if the process table has no free slot
// (same failure value CREATE itself returns).
func (k *Kernel) Spawn(entry ProcFunc, stackSz int) int {
	idx := k.createLocked(entry, stackSz, k.allocPID())
	if idx == -1 {
		return 0
	}
	k.ready(idx)
	return k.table[idx].pid
}

// handleCreate services the CREATE request.
func (k *Kernel) handleCreate(idx int, a createArgs) {
	p := &k.table[idx]
	newIdx := k.createLocked(a.Entry, a.StackSz, k.allocPID())
	if newIdx == -1 {
		p.rc = 0 // no free PCB slot
	} else {
		k.ready(newIdx)
		p.rc = k.table[newIdx].pid
	}
	k.ready(idx)
}

// handleStop services the STOP request: releases every peer blocked
// on this PCB's send/recv queues with ERR_IPC, frees its stack, and
// returns the slot to stop_q.
func (k *Kernel) handleStop(idx int) {
	p := &k.table[idx]

	k.release(&p.blockedSenders)
	k.release(&p.blockedReceivers)
	k.closeAllFDs(idx)

	p.stackMem = nil
	p.ctl = nil
	k.stop(idx)
}
