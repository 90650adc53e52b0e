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

// Device request gateway: the DEV_* cases route to an arbitrary
// slice of attached drivers, each a small Go interface instead of a
// jump table indexed by major number.

// Device is the driver contract every device attached to a Kernel
// must satisfy. Open returns a driver-private handle; -1 from Read
// means "would block" and parks the caller in BLOCK_ON_DEV until a
// later retry (driven by devWait, see retryDevWaiters) succeeds.
type Device interface {
	Open() (handle int, ok bool)
	Close(handle int)
	Read(handle int, buf []byte) int
	Write(handle int, buf []byte) int
	Ioctl(handle int, cmd uint64, arg any) int
}

// ScanFeeder is implemented by a Device that wants first look at raw
// keyboard scan codes as KBD_INT delivers them, rather than reading
// the Keyboard source directly - only the kernel itself
// reads Keyboard.ScanCodes(), so a second independent consumer would
// just race it for bytes. The dispatcher calls Feed once per KBD_INT
// for every registered device that implements this.
type ScanFeeder interface {
	Feed(code byte)
}

// openFile is one entry of a PCB's fd table: which device a fd names
// and the driver's own handle for that open instance.
type openFile struct {
	devNo  int
	handle int
}

// devWaiter is a parked DEV_READ retry: everything retryDevWaiters
// needs to attempt the read again without the caller's own doSyscall
// still blocking on the channel round trip.
type devWaiter struct {
	idx int
	fd  int
	buf []byte
}

func allocFD(p *PCB) int {
	for i := range p.fdt {
		if p.fdt[i].devNo == -1 {
			return i
		}
	}
	return -1
}

// handleDevOpen services DEV_OPEN: allocates a fd and asks the
// driver for a handle.
func (k *Kernel) handleDevOpen(idx int, a devOpenArgs) {
	p := &k.table[idx]
	if a.DevNo < 0 || a.DevNo >= len(k.devices) {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	fd := allocFD(p)
	if fd == -1 {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	h, ok := k.devices[a.DevNo].Open()
	if !ok {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	p.fdt[fd] = openFile{devNo: a.DevNo, handle: h}
	p.rc = fd
	k.ready(idx)
}

// handleDevClose services DEV_CLOSE.
func (k *Kernel) handleDevClose(idx int, a devCloseArgs) {
	p := &k.table[idx]
	of, ok := validFD(p, a.FD)
	if !ok {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	k.devices[of.devNo].Close(of.handle)
	p.fdt[a.FD] = openFile{devNo: -1}
	p.rc = 0
	k.ready(idx)
}

// handleDevRead services DEV_READ. A driver reporting "would block"
// (-1) parks the caller in BLOCK_ON_DEV on k.devWait rather than
// returning immediately.
func (k *Kernel) handleDevRead(idx int, a devReadArgs) {
	p := &k.table[idx]
	of, ok := validFD(p, a.FD)
	if !ok {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	n := k.devices[of.devNo].Read(of.handle, a.Buf)
	if n == -1 {
		p.state = BlockOnDev
		k.devWait = append(k.devWait, devWaiter{idx: idx, fd: a.FD, buf: a.Buf})
		return
	}
	p.rc = n
	k.ready(idx)
}

// handleDevWrite services DEV_WRITE, which always completes
// synchronously - the would-block gateway applies only to reads.
func (k *Kernel) handleDevWrite(idx int, a devWriteArgs) {
	p := &k.table[idx]
	of, ok := validFD(p, a.FD)
	if !ok {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	p.rc = k.devices[of.devNo].Write(of.handle, a.Buf)
	k.ready(idx)
}

// handleDevIoctl services DEV_IOCTL.
func (k *Kernel) handleDevIoctl(idx int, a devIoctlArgs) {
	p := &k.table[idx]
	of, ok := validFD(p, a.FD)
	if !ok {
		p.rc = ErrDevNo
		k.ready(idx)
		return
	}
	p.rc = k.devices[of.devNo].Ioctl(of.handle, a.Cmd, a.Arg)
	k.ready(idx)
}

func validFD(p *PCB, fd int) (openFile, bool) {
	if fd < 0 || fd >= len(p.fdt) || p.fdt[fd].devNo == -1 {
		return openFile{}, false
	}
	return p.fdt[fd], true
}

// retryDevWaiters is called by the dispatcher after every IRQ -
// driving retries off the same ticks that drive the sleep queue keeps
// the gateway from needing its own timer. Waiters whose driver still
// reports -1 stay parked for the next tick.
func (k *Kernel) retryDevWaiters() {
	still := k.devWait[:0]
	for _, w := range k.devWait {
		p := &k.table[w.idx]
		of, ok := validFD(p, w.fd)
		if !ok {
			// fd closed out from under a blocked reader (shouldn't
			// normally happen while it owns the process) - drop it.
			p.rc = ErrDevNo
			k.ready(w.idx)
			continue
		}
		n := k.devices[of.devNo].Read(of.handle, w.buf)
		if n == -1 {
			still = append(still, w)
			continue
		}
		p.rc = n
		k.ready(w.idx)
	}
	k.devWait = still
}

// closeAllFDs closes every open fd owned by idx, so drivers see
// balanced open/close pairs even when a process STOPs without
// cleaning up.
func (k *Kernel) closeAllFDs(idx int) {
	p := &k.table[idx]
	for i := range p.fdt {
		if p.fdt[i].devNo != -1 {
			k.devices[p.fdt[i].devNo].Close(p.fdt[i].handle)
			p.fdt[i] = openFile{devNo: -1}
		}
	}
}
