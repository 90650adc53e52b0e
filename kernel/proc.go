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

// Syscall wrappers: the user-side API a ProcFunc calls. Each is a
// thin doSyscall(code, typed-args) - the library shim layer a user
// program would link against on real hardware.

// Create spawns a new process, returning its pid or 0 on failure.
func (p *Proc) Create(entry ProcFunc, stackSz int) int {
	return p.doSyscall(Create, createArgs{Entry: entry, StackSz: stackSz})
}

// Yield voluntarily gives up the remainder of the quantum.
func (p *Proc) Yield() int {
	return p.doSyscall(Yield, nil)
}

// StopSelf terminates the calling process. It never returns.
func (p *Proc) StopSelf() {
	p.doSyscall(StopReq, nil)
	panic("kernel: STOPPED process resumed")
}

// GetPID returns the caller's own pid via a real syscall round trip
// (see also Proc.PID for the non-trapping shortcut).
func (p *Proc) GetPID() int {
	return p.doSyscall(GetPID, nil)
}

// Puts writes a line to the console synchronously.
func (p *Proc) Puts(s string) int {
	return p.doSyscall(Puts, putsArgs{Str: s})
}

// Sleep blocks for floor(ms / tick length) timer ticks. Returns 0 on
// a full sleep, the residual milliseconds if woken early by a signal,
// or BlockedSleep, without blocking, when ms is shorter than one tick
// (zero and negative durations included).
func (p *Proc) Sleep(ms int) int {
	return p.doSyscall(SleepReq, sleepArgs{MS: ms})
}

// Send rendezvous-sends buf to dstPID, returning the byte count
// transferred or a negative ERR_IPC* code.
func (p *Proc) Send(dstPID int, buf []byte) int {
	return p.doSyscall(Send, sendArgs{DstPID: dstPID, Buf: buf})
}

// Recv rendezvous-receives into buf from srcPID (0 = ANY), returning
// the byte count transferred (with *fromPID updated) or a negative
// ERR_IPC* code.
func (p *Proc) Recv(srcPID int, buf []byte) (n int, fromPID int) {
	a := recvArgs{SrcPID: srcPID, Buf: buf}
	rc := p.doSyscall(Recv, &a)
	return rc, a.SrcPID
}

// SigHandler installs newH as the handler for sigNo, returning the
// previously installed handler.
func (p *Proc) SigHandler(sigNo uint32, newH SignalHandler) (old SignalHandler, rc int) {
	var oldH SignalHandler
	rc = p.doSyscall(SigHandlerReq, sigHandlerArgs{SigNo: sigNo, NewH: newH, OldHPtr: &oldH})
	return oldH, rc
}

// SigKill posts signal sigNo to pid.
func (p *Proc) SigKill(pid int, sigNo uint32) int {
	return p.doSyscall(SigKillReq, sigKillArgs{PID: pid, SigNo: sigNo})
}

// SigWait blocks until any signal is delivered, returning the
// delivered signal's number.
func (p *Proc) SigWait() int {
	return p.doSyscall(SigWaitReq, nil)
}

// DevOpen opens devNo, returning an fd, or ErrDevNo if devNo is not
// attached, the fd table is full, or the driver refuses the open.
func (p *Proc) DevOpen(devNo int) int {
	return p.doSyscall(DevOpen, devOpenArgs{DevNo: devNo})
}

// DevClose closes fd.
func (p *Proc) DevClose(fd int) int {
	return p.doSyscall(DevClose, devCloseArgs{FD: fd})
}

// DevRead reads into buf from fd. A driver "would block" (-1) parks
// the caller in BLOCK_ON_DEV; the kernel retries the read after every
// timer or keyboard interrupt until the driver returns data.
func (p *Proc) DevRead(fd int, buf []byte) int {
	return p.doSyscall(DevRead, devReadArgs{FD: fd, Buf: buf})
}

// DevWrite writes buf to fd, completing synchronously.
func (p *Proc) DevWrite(fd int, buf []byte) int {
	return p.doSyscall(DevWrite, devWriteArgs{FD: fd, Buf: buf})
}

// DevIoctl issues a driver-defined control operation.
func (p *Proc) DevIoctl(fd int, cmd uint64, arg any) int {
	return p.doSyscall(DevIoctl, devIoctlArgs{FD: fd, Cmd: cmd, Arg: arg})
}
