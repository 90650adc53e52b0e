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

// Package devices implements the drivers attached to a kernel.Kernel's
// device gateway: a console/keyboard pair and a PTY-backed serial
// line, each satisfying kernel.Device.
package devices

// ScanDecoder translates raw PS/2 set-1 keyboard scan codes to ASCII,
// tracking shift/ctrl/meta/capslock/extended state across calls.
// State-only events (modifier presses, key releases) produce no
// character and are reported as ok=false.
type ScanDecoder struct {
	state decoderState
}

type decoderState uint8

const (
	inShift decoderState = 1 << iota
	capsLock
	inCtl
	inMeta
	extended
)

const keyUp = 0x80

const (
	lshift = 0x2a
	rshift = 0x36
	capsl  = 0x3a
	lctl   = 0x1d
	lmeta  = 0x38
	extesc = 0xe0
)

var kbcode = [...]byte{0,
	27, '1', '2', '3', '4', '5', '6', '7', '8', '9',
	'0', '-', '=', '\b', '\t', 'q', 'w', 'e', 'r', 't',
	'y', 'u', 'i', 'o', 'p', '[', ']', '\n', 0, 'a',
	's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'',
	'`', 0, '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm',
	',', '.', '/', 0, 0, 0, ' ',
}

var kbshift = [...]byte{0,
	0, '!', '@', '#', '$', '%', '^', '&', '*', '(',
	')', '_', '+', '\b', '\t', 'Q', 'W', 'E', 'R', 'T',
	'Y', 'U', 'I', 'O', 'P', '{', '}', '\n', 0, 'A',
	'S', 'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"',
	'~', 0, '|', 'Z', 'X', 'C', 'V', 'B', 'N', 'M',
	'<', '>', '?', 0, 0, 0, ' ',
}

var kbctl = [...]byte{0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 31, 0, '\b', '\t', 17, 23, 5, 18, 20,
	25, 21, 9, 15, 16, 27, 29, '\n', 0, 1,
	19, 4, 6, 7, 8, 10, 11, 12, 0, 0,
	0, 0, 28, 26, 24, 3, 22, 2, 14, 13,
}

// Decode feeds one raw scan code through the keyboard state machine,
// returning the ASCII character it produces, if any. Extended
// (0xE0-prefixed) sequences are consumed without producing a
// character.
func (d *ScanDecoder) Decode(code byte) (ch byte, ok bool) {
	if d.state&extended != 0 {
		d.state &^= extended
		return 0, false
	}

	// The extended prefix has the key-up bit set, so it must be
	// recognized before the key-release branch below.
	if code == extesc {
		d.state |= extended
		return 0, false
	}

	if code&keyUp != 0 {
		switch code &^ keyUp {
		case lshift, rshift:
			d.state &^= inShift
		case capsl:
			d.state &^= capsLock
		case lctl:
			d.state &^= inCtl
		case lmeta:
			d.state &^= inMeta
		}
		return 0, false
	}

	switch code {
	case lshift, rshift:
		d.state |= inShift
		return 0, false
	case capsl:
		d.state |= capsLock
		return 0, false
	case lctl:
		d.state |= inCtl
		return 0, false
	case lmeta:
		d.state |= inMeta
		return 0, false
	}

	var c byte
	if int(code) < len(kbcode) {
		if d.state&capsLock != 0 {
			c = kbshift[code]
		} else {
			c = kbcode[code]
		}
	}

	if d.state&inShift != 0 {
		if int(code) >= len(kbshift) {
			return 0, false
		}
		if d.state&capsLock != 0 {
			c = kbcode[code]
		} else {
			c = kbshift[code]
		}
	}

	if d.state&inCtl != 0 {
		if int(code) >= len(kbctl) {
			return 0, false
		}
		c = kbctl[code]
	}

	if d.state&inMeta != 0 {
		c += 0x80
	}

	if c == 0 {
		return 0, false
	}
	return c, true
}
