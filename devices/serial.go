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

package devices

import (
	serial "github.com/daedaluz/goserial"
)

// Serial is a PTY-backed line device: a UART stand-in that actually
// exists on a development machine, a pseudo-terminal pair opened via
// goserial's OpenPTY. The kernel-facing half is the master end; an
// operator or test harness attaches to the slave side directly by
// path, same as plugging a terminal into a real UART.
type Serial struct {
	master *serial.Port
	slave  *serial.Port
}

// NewSerial opens a fresh PTY pair in raw mode and returns a Serial
// wrapping its master side. The caller is responsible for eventually
// calling Shutdown.
func NewSerial() (*Serial, error) {
	master, slave, err := serial.OpenPTY(nil, nil)
	if err != nil {
		return nil, err
	}
	if err := master.MakeRaw(); err != nil {
		master.Close()
		slave.Close()
		return nil, err
	}
	return &Serial{master: master, slave: slave}, nil
}

// Shutdown releases both ends of the pty pair. Not part of
// kernel.Device - called once at process exit by cmd/xeroskernel,
// independent of any process's DEV_CLOSE.
func (s *Serial) Shutdown() error {
	s.slave.Close()
	return s.master.Close()
}

// Open implements kernel.Device. Like Console, only one open instance
// is modeled per Serial (the handle is always 0); a second open
// before the first close simply shares the same master port.
func (s *Serial) Open() (int, bool) {
	return 0, true
}

// Close implements kernel.Device; the underlying pty stays open for
// reuse across CREATE/STOP cycles (see Shutdown for real teardown).
func (s *Serial) Close(int) {}

// Read implements kernel.Device: a zero-timeout read that reports
// "would block" (-1) instead of blocking the dispatcher goroutine,
// the Go-native equivalent of polling a UART's receive-ready status
// bit before reading it.
func (s *Serial) Read(_ int, buf []byte) int {
	n, err := s.master.ReadTimeout(buf, 0)
	if err != nil || n == 0 {
		return -1
	}
	return n
}

// Write implements kernel.Device.
func (s *Serial) Write(_ int, buf []byte) int {
	n, err := s.master.Write(buf)
	if err != nil {
		return -1
	}
	return n
}

// Ioctl implements kernel.Device. No control operations are defined.
func (s *Serial) Ioctl(int, uint64, any) int {
	return -1
}
