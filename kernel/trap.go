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

// The context-switch primitive. On real hardware this is a set of asm
// trampolines saving the user register file at each trap gate; here
// the whole mechanism collapses into one rendezvous between the
// dispatcher goroutine and the process's own goroutine.
//
// A process's logical thread of control lives in its own goroutine,
// running the ProcFunc it was created with. It never touches Kernel
// state directly; it only ever calls Proc methods, which package a
// request and rendezvous with the dispatcher over two unbuffered
// channels. This *is* the trap gate: reqCh<- is the software/hardware
// interrupt, resumeCh<- is the iret.

// sigFrame is the signal-delivery trampoline frame, minus the
// saved-esp bookkeeping a real user stack would need: Go's own
// goroutine call stack already tracks handler nesting (see
// Proc.runSignal), so there is no separate stack pointer to save and
// restore.
type sigFrame struct {
	sigNo         uint32
	handler       SignalHandler
	oldRC         int
	oldIgnoreMask uint32
}

// Proc is a process's own view of itself: the handle its ProcFunc
// uses to make kernel calls. It must never be shared across
// goroutines other than the one it was handed to.
type Proc struct {
	k   *Kernel
	pid int
	ctl *procControl
}

// PID returns the process's own pid without a kernel round trip
// (GETPID still exists as a real syscall; this is a convenience most
// process bodies want internally).
func (p *Proc) PID() int { return p.pid }

// doSyscall sends a request and blocks for the dispatcher's
// response, transparently servicing any signal delivery the
// dispatcher attaches to the resume.
func (p *Proc) doSyscall(code int, args any) int {
	p.ctl.reqCh <- request{Code: code, Args: args}
	return p.awaitResume()
}

func (p *Proc) awaitResume() int {
	resp := <-p.ctl.resumeCh
	if resp.Signal != nil {
		return p.runSignal(resp.Signal)
	}
	return resp.RC
}

// runSignal invokes the installed handler, then issues the implicit
// SIG_RETURN a hardware trampoline would build on the user stack.
// Handler completion must always return through the syscall path -
// nested delivery depends on it - so the kernel never restores the
// saved state directly.
func (p *Proc) runSignal(f *sigFrame) int {
	if f.handler != nil {
		f.handler(p)
	}
	p.ctl.reqCh <- request{
		Code: SigReturnReq,
		Args: sigReturnArgs{OldRC: f.oldRC, OldIgnoreMask: f.oldIgnoreMask},
	}
	return p.awaitResume()
}

// contextSwitch is the kernel-side half of the rendezvous: it resumes
// the chosen process (delivering rc, and a signal frame if one was
// prepared) and blocks until that process's next trap, OR until a
// timer/keyboard IRQ preempts it first. The trap-source
// discrimination a vectored IDT would do happens in the select below.
func (k *Kernel) contextSwitch(idx int, sig *sigFrame) int {
	p := &k.table[idx]
	if !p.preempted {
		p.ctl.resumeCh <- response{RC: p.rc, Signal: sig}
	}
	// A preempted process never consumed its last resume: its
	// goroutine is still executing user code (or already blocked
	// posting its next trap), so there is nothing to send - re-entry
	// here is purely waiting for the in-flight trap to land. The
	// dispatcher guarantees sig == nil in that case (see Step).

	select {
	case req := <-p.ctl.reqCh:
		p.preempted = false
		p.args = req.Args
		return req.Code
	case <-k.timerFire:
		// The in-flight rc is preserved untouched - p.rc still holds
		// whatever the interrupted syscall should return - and the
		// interrupt code itself becomes the request.
		p.preempted = true
		return TimerInt
	case code := <-k.kbdFire:
		p.preempted = true
		k.pendingScan = code
		return KbdInt
	}
}

// newProcControl allocates the channel pair for a fresh PCB slot.
func newProcControl() *procControl {
	return &procControl{
		reqCh:    make(chan request),
		resumeCh: make(chan response),
	}
}
