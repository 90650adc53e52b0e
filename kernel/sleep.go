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

// Delta-encoded sleep queue. Each entry's deltaSlice is ticks *after
// its predecessor*; only the head is ever decremented.

const defaultTickMS = 10

// sleepToSlice converts a millisecond duration to a tick count: a
// sleeper wakes no earlier than floor(ms / tickMS) ticks from now.
func (k *Kernel) sleepToSlice(ms int) int {
	if k.tickMS <= 0 {
		return ms / defaultTickMS
	}
	return ms / k.tickMS
}

// insertSleep inserts idx into the delta queue so that its absolute
// wake time (sum of deltas from the head) equals slice ticks from
// now.
func (k *Kernel) insertSleep(idx, slice int) {
	prev := -1
	cur := k.sleepQ.head
	remaining := slice

	for cur != -1 && k.table[cur].deltaSlice <= remaining {
		remaining -= k.table[cur].deltaSlice
		prev = cur
		cur = k.table[cur].next
	}

	k.table[idx].deltaSlice = remaining
	k.table[idx].next = cur
	if cur != -1 {
		k.table[cur].deltaSlice -= remaining
	}
	if prev == -1 {
		k.sleepQ.head = idx
	} else {
		k.table[prev].next = idx
	}
	if cur == -1 {
		k.sleepQ.tail = idx
	}
	k.sleepQ.size++
}

// tick decrements the head's deltaSlice and reports whether it has
// reached zero.
func (k *Kernel) tick() bool {
	if k.sleepQ.head == -1 {
		return false
	}
	k.table[k.sleepQ.head].deltaSlice--
	return k.table[k.sleepQ.head].deltaSlice <= 0
}

// wake pops every head entry whose cumulative delta has reached zero,
// setting each READY with rc = 0 (a clean, full-duration wake).
func (k *Kernel) wake() {
	for k.sleepQ.head != -1 && k.table[k.sleepQ.head].deltaSlice <= 0 {
		idx := k.sleepQ.head
		k.sleepQ.head = k.table[idx].next
		if k.sleepQ.head == -1 {
			k.sleepQ.tail = -1
		}
		k.sleepQ.size--
		k.table[idx].next = -1
		k.table[idx].rc = 0
		k.ready(idx)
	}
}

// handleSleep services the SLEEP request.
func (k *Kernel) handleSleep(idx int, a sleepArgs) {
	p := &k.table[idx]
	slice := k.sleepToSlice(a.MS)
	if slice <= 0 {
		p.rc = BlockedSleep
		k.ready(idx)
		return
	}
	p.state = Sleep
	k.insertSleep(idx, slice)
}
