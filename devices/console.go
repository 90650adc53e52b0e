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

import "io"

// Console is a one-instance-only character device: input is decoded
// keyboard scan codes (fed by the kernel's KBD_INT handler via Feed,
// see kernel.ScanFeeder), output goes straight to Out. It satisfies
// the kernel.Device interface so it can be opened/closed/read/written
// through the DEV_* gateway like any other driver.
type Console struct {
	Out io.Writer

	decoder ScanDecoder
	rx      []byte // decoded, not-yet-read characters, FIFO order
	opened  bool
}

// NewConsole constructs a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{Out: out}
}

// Feed decodes one raw scan code and, if it produces a character,
// appends it to the pending input queue (kernel.ScanFeeder).
func (c *Console) Feed(code byte) {
	if ch, ok := c.decoder.Decode(code); ok {
		c.rx = append(c.rx, ch)
	}
}

// Open implements kernel.Device. Only one open instance is modeled -
// the handle is always 0 - a single console, not a multiplexed tty
// layer.
func (c *Console) Open() (int, bool) {
	c.opened = true
	return 0, true
}

// Close implements kernel.Device.
func (c *Console) Close(int) {
	c.opened = false
}

// Read implements kernel.Device: drains already-decoded characters
// into buf, or reports "would block" (-1) if none are queued yet.
func (c *Console) Read(_ int, buf []byte) int {
	if len(c.rx) == 0 {
		return -1
	}
	n := copy(buf, c.rx)
	c.rx = c.rx[n:]
	return n
}

// Write implements kernel.Device: synchronous console output.
func (c *Console) Write(_ int, buf []byte) int {
	n, _ := c.Out.Write(buf)
	return n
}

// Ioctl implements kernel.Device. The console defines no control
// operations; every request fails.
func (c *Console) Ioctl(int, uint64, any) int {
	return -1
}
