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

// FIFO singly-linked queues over PCB-table indices.

// queue is a FIFO of PCB-table indices threaded through PCB.next.
// head == -1 means empty. tail is kept explicitly so append is O(1).
type queue struct {
	head, tail int
	size       int
}

func newQueue() queue { return queue{head: -1, tail: -1} }

func (k *Kernel) pushBack(q *queue, idx int) {
	k.table[idx].next = -1
	if q.head == -1 {
		q.head = idx
		q.tail = idx
	} else {
		k.table[q.tail].next = idx
		q.tail = idx
	}
	q.size++
}

// popFront detaches and returns the head index, or -1 if empty.
func (k *Kernel) popFront(q *queue) int {
	idx := q.head
	if idx == -1 {
		return -1
	}
	q.head = k.table[idx].next
	if q.head == -1 {
		q.tail = -1
	}
	k.table[idx].next = -1
	q.size--
	return idx
}

// drain empties q, invoking fn on each index in FIFO order.
func (k *Kernel) drain(q *queue, fn func(idx int)) {
	for {
		idx := k.popFront(q)
		if idx == -1 {
			return
		}
		fn(idx)
	}
}

// ready moves pcb idx onto the ready queue and marks it Ready.
func (k *Kernel) ready(idx int) {
	k.table[idx].state = Ready
	k.pushBack(&k.readyQ, idx)
}

// next pops the ready queue head. It always returns a valid index:
// the idle process is never removed from the table, so the queue is
// never observed empty by the dispatcher.
func (k *Kernel) next() int {
	idx := k.popFront(&k.readyQ)
	return idx
}

// stop moves pcb idx onto the stop queue, invalidates its pid, and
// marks it Stop.
func (k *Kernel) stop(idx int) {
	p := &k.table[idx]
	p.pid = InvalidPID
	p.state = Stop
	k.pushBack(&k.stopQ, idx)
}

// removeMatch scans q for the first entry satisfying pred, unlinks
// it, and returns its index, or -1 if none matched. Used by IPC
// matching (kernel/ipc.go) where the match isn't necessarily the
// queue head - e.g. a recv naming a specific src pid among several
// blocked senders.
func (k *Kernel) removeMatch(q *queue, pred func(idx int) bool) int {
	prev := -1
	cur := q.head
	for cur != -1 {
		next := k.table[cur].next
		if pred(cur) {
			if prev == -1 {
				q.head = next
			} else {
				k.table[prev].next = next
			}
			if cur == q.tail {
				q.tail = prev
			}
			k.table[cur].next = -1
			q.size--
			return cur
		}
		prev = cur
		cur = next
	}
	return -1
}

// release unblocks every PCB on q with rc = ERR_IPC and returns them
// to ready_q, used when a peer STOPs while others are blocked on its
// send/recv queues.
func (k *Kernel) release(q *queue) {
	k.drain(q, func(idx int) {
		k.table[idx].rc = ErrIPC
		k.ready(idx)
	})
}
