// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kernel

import (
	"bytes"
	"testing"

	"github.com/xeroskernel-go/xeroskernel/devices"
)

// stubDevice is a scripted in-memory driver for exercising the DEV_*
// gateway without real hardware: reads drain data (reporting
// would-block when empty), writes accumulate, opens/closes count.
type stubDevice struct {
	data    []byte
	wrote   []byte
	opens   int
	closes  int
	lastCmd uint64
}

func (d *stubDevice) Open() (int, bool) { d.opens++; return 7, true }
func (d *stubDevice) Close(int)         { d.closes++ }

func (d *stubDevice) Read(_ int, buf []byte) int {
	if len(d.data) == 0 {
		return -1
	}
	n := copy(buf, d.data)
	d.data = d.data[n:]
	return n
}

func (d *stubDevice) Write(_ int, buf []byte) int {
	d.wrote = append(d.wrote, buf...)
	return len(buf)
}

func (d *stubDevice) Ioctl(_ int, cmd uint64, _ any) int {
	d.lastCmd = cmd
	return 0
}

// TestDevReadWouldBlockThenWakes: a driver read returning -1 parks
// the caller in BLOCK_ON_DEV (in no dispatcher-visible queue) until a
// retry succeeds.
func TestDevReadWouldBlockThenWakes(t *testing.T) {
	dev := &stubDevice{}
	k := New(Config{ProcSz: 4, Devices: []Device{dev}})

	var readN int
	var got []byte
	done := make(chan struct{})
	pid := k.Spawn(func(p *Proc) {
		fd := p.DevOpen(0)
		if fd < 0 {
			t.Errorf("DevOpen rc = %d, want fd >= 0", fd)
		}
		buf := make([]byte, 8)
		readN = p.DevRead(fd, buf)
		got = append([]byte(nil), buf[:readN]...)
		close(done)
		p.StopSelf()
	}, 0)

	k.Step() // DevOpen trap
	k.Step() // DevRead trap: stub is empty, parks the reader

	idx := k.findPID(pid)
	if idx == -1 || k.table[idx].state != BlockOnDev {
		t.Fatalf("reader not in BLOCK_ON_DEV after would-block read")
	}
	if k.readyQ.size != 1 { // idle only
		t.Fatalf("blocked reader still dispatcher-visible: readyQ size = %d", k.readyQ.size)
	}

	dev.data = []byte("ok")
	k.retryDevWaiters()
	if k.table[idx].state != Ready {
		t.Fatalf("reader state after data arrived = %v, want Ready", k.table[idx].state)
	}

	runUntilClosed(t, k, done, 20)

	if readN != 2 || string(got) != "ok" {
		t.Fatalf("DevRead = %d %q, want 2 %q", readN, got, "ok")
	}
}

// TestDevGatewaySynchronousOps: write, ioctl, and close complete
// synchronously; bad device numbers and bad fds fail with ErrDevNo.
func TestDevGatewaySynchronousOps(t *testing.T) {
	dev := &stubDevice{}
	k := New(Config{ProcSz: 4, Devices: []Device{dev}})

	done := make(chan struct{})
	k.Spawn(func(p *Proc) {
		if rc := p.DevOpen(3); rc != ErrDevNo {
			t.Errorf("DevOpen(3) rc = %d, want ErrDevNo (%d)", rc, ErrDevNo)
		}
		fd := p.DevOpen(0)
		if n := p.DevWrite(fd, []byte("out")); n != 3 {
			t.Errorf("DevWrite rc = %d, want 3", n)
		}
		if rc := p.DevIoctl(fd, 0x5401, nil); rc != 0 {
			t.Errorf("DevIoctl rc = %d, want 0", rc)
		}
		if rc := p.DevClose(fd); rc != 0 {
			t.Errorf("DevClose rc = %d, want 0", rc)
		}
		if rc := p.DevWrite(fd, []byte("x")); rc != ErrDevNo {
			t.Errorf("DevWrite on closed fd rc = %d, want ErrDevNo (%d)", rc, ErrDevNo)
		}
		close(done)
		p.StopSelf()
	}, 0)

	runUntilClosed(t, k, done, 30)

	if string(dev.wrote) != "out" {
		t.Fatalf("device received %q, want %q", dev.wrote, "out")
	}
	if dev.lastCmd != 0x5401 {
		t.Fatalf("device ioctl cmd = %#x, want 0x5401", dev.lastCmd)
	}
	if dev.closes != 1 {
		t.Fatalf("device close count = %d, want 1", dev.closes)
	}
}

// TestStopClosesOpenFDs: a process that STOPs with fds still open has
// them closed by the kernel, so drivers see balanced open/close pairs.
func TestStopClosesOpenFDs(t *testing.T) {
	dev := &stubDevice{}
	k := New(Config{ProcSz: 4, Devices: []Device{dev}})

	done := make(chan struct{})
	k.Spawn(func(p *Proc) {
		p.DevOpen(0)
		close(done)
		p.StopSelf()
	}, 0)

	runUntilClosed(t, k, done, 20)
	// The Step that observed close(done) also serviced the StopSelf
	// trap that follows it; this extra Step only runs idle.
	k.Step()

	if dev.opens != 1 || dev.closes != 1 {
		t.Fatalf("open/close counts = %d/%d, want 1/1", dev.opens, dev.closes)
	}
}

// TestConsoleFeedThroughKbdInt drives the KBD_INT half of the gateway
// the way handleKbdInt does: raw scan codes fed into the attached
// console become readable characters, and output lands on the
// console's writer.
func TestConsoleFeedThroughKbdInt(t *testing.T) {
	var out bytes.Buffer
	console := devices.NewConsole(&out)
	k := New(Config{ProcSz: 4, Devices: []Device{console}})

	var readN int
	var got []byte
	done := make(chan struct{})
	k.Spawn(func(p *Proc) {
		fd := p.DevOpen(0)
		buf := make([]byte, 8)
		readN = p.DevRead(fd, buf)
		got = append([]byte(nil), buf[:readN]...)
		p.DevWrite(fd, buf[:readN])
		close(done)
		p.StopSelf()
	}, 0)

	k.Step() // DevOpen trap
	k.Step() // DevRead trap: no input decoded yet, parks the reader

	// Scan code 0x1e is the 'a' key; handleKbdInt feeds it to every
	// ScanFeeder device, then retries parked readers.
	k.pendingScan = 0x1e
	k.handleKbdInt()

	runUntilClosed(t, k, done, 20)

	if readN != 1 || string(got) != "a" {
		t.Fatalf("console read = %d %q, want 1 %q", readN, got, "a")
	}
	if out.String() != "a" {
		t.Fatalf("console output = %q, want %q", out.String(), "a")
	}
}
