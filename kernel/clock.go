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

import "time"

// PIT abstracts the programmable interval timer that drives
// preemption. The dispatcher never reads hardware directly; it only
// ever selects on the channel PIT.Ticks() returns, so a deterministic
// fake can stand in for real wall-clock time in tests (see ManualPIT
// below).
type PIT interface {
	Ticks() <-chan struct{}
}

// Keyboard abstracts the keyboard IRQ lower half. It yields raw scan
// codes; translation to ASCII is the device gateway's job
// (devices.ScanDecoder), not the dispatcher's.
type Keyboard interface {
	ScanCodes() <-chan byte
}

// RealPIT drives Ticks() from a real time.Ticker, for the boot
// command (cmd/xeroskernel). quantum is the tick period between
// forced preemptions.
type RealPIT struct {
	ticker *time.Ticker
	ch     chan struct{}
	done   chan struct{}
}

// NewRealPIT starts a ticker firing every quantum and forwarding each
// tick onto a buffered channel (capacity 1: a tick that arrives while
// the dispatcher hasn't drained the last one is coalesced, matching
// real PIC behavior where a late EOI doesn't queue duplicate IRQs).
func NewRealPIT(quantum time.Duration) *RealPIT {
	r := &RealPIT{
		ticker: time.NewTicker(quantum),
		ch:     make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r
}

func (r *RealPIT) pump() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			select {
			case r.ch <- struct{}{}:
			default:
			}
		}
	}
}

func (r *RealPIT) Ticks() <-chan struct{} { return r.ch }

// Stop releases the underlying ticker.
func (r *RealPIT) Stop() {
	r.ticker.Stop()
	close(r.done)
}

// ManualPIT is a test-driven PIT: the test calls Fire() to simulate
// exactly one timer IRQ, with no dependency on wall-clock scheduling.
type ManualPIT struct {
	ch chan struct{}
}

func NewManualPIT() *ManualPIT {
	return &ManualPIT{ch: make(chan struct{}, 1)}
}

func (m *ManualPIT) Ticks() <-chan struct{} { return m.ch }

// Fire injects one timer tick. It does not block: a tick injected
// while the previous one is still pending is coalesced, same as
// RealPIT.
func (m *ManualPIT) Fire() {
	select {
	case m.ch <- struct{}{}:
	default:
	}
}

// RealKeyboard forwards scan codes read from an input source (see
// devices.Console) onto a channel the dispatcher selects on.
type RealKeyboard struct {
	ch chan byte
}

func NewRealKeyboard() *RealKeyboard {
	return &RealKeyboard{ch: make(chan byte, 16)}
}

func (r *RealKeyboard) ScanCodes() <-chan byte { return r.ch }

// Post delivers one scan code, as the keyboard IRQ lower half would.
func (r *RealKeyboard) Post(code byte) {
	r.ch <- code
}

// ManualKeyboard is the test-driven counterpart to RealKeyboard.
type ManualKeyboard struct {
	ch chan byte
}

func NewManualKeyboard() *ManualKeyboard {
	return &ManualKeyboard{ch: make(chan byte, 16)}
}

func (m *ManualKeyboard) ScanCodes() <-chan byte { return m.ch }

func (m *ManualKeyboard) Fire(code byte) {
	m.ch <- code
}
