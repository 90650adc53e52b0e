// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kernel

import "testing"

func newTestKernel(n int) *Kernel {
	return &Kernel{table: newPCBTable(n)}
}

func TestQueueFIFOOrder(t *testing.T) {
	k := newTestKernel(4)
	q := newQueue()

	k.pushBack(&q, 2)
	k.pushBack(&q, 0)
	k.pushBack(&q, 3)

	want := []int{2, 0, 3}
	for i, w := range want {
		if got := k.popFront(&q); got != w {
			t.Fatalf("pop %d: got %d, want %d", i, got, w)
		}
	}
	if got := k.popFront(&q); got != -1 {
		t.Fatalf("pop from empty queue: got %d, want -1", got)
	}
	if q.size != 0 {
		t.Fatalf("size after drain: got %d, want 0", q.size)
	}
}

func TestQueueRemoveMatchMidList(t *testing.T) {
	k := newTestKernel(5)
	q := newQueue()
	for _, idx := range []int{0, 1, 2, 3} {
		k.pushBack(&q, idx)
	}

	got := k.removeMatch(&q, func(idx int) bool { return idx == 2 })
	if got != 2 {
		t.Fatalf("removeMatch: got %d, want 2", got)
	}
	if q.size != 3 {
		t.Fatalf("size after removeMatch: got %d, want 3", q.size)
	}

	var order []int
	k.drain(&q, func(idx int) { order = append(order, idx) })
	wantOrder := []int{0, 1, 3}
	if len(order) != len(wantOrder) {
		t.Fatalf("remaining order: got %v, want %v", order, wantOrder)
	}
	for i, w := range wantOrder {
		if order[i] != w {
			t.Fatalf("remaining order[%d]: got %d, want %d", i, order[i], w)
		}
	}
}

func TestQueueRemoveMatchNoneFound(t *testing.T) {
	k := newTestKernel(3)
	q := newQueue()
	k.pushBack(&q, 0)
	k.pushBack(&q, 1)

	if got := k.removeMatch(&q, func(idx int) bool { return idx == 9 }); got != -1 {
		t.Fatalf("removeMatch with no matches: got %d, want -1", got)
	}
	if q.size != 2 {
		t.Fatalf("size unchanged: got %d, want 2", q.size)
	}
}

func TestQueueRemoveMatchHeadAndTail(t *testing.T) {
	k := newTestKernel(3)
	q := newQueue()
	k.pushBack(&q, 0)

	got := k.removeMatch(&q, func(idx int) bool { return idx == 0 })
	if got != 0 {
		t.Fatalf("removeMatch single-element: got %d, want 0", got)
	}
	if q.head != -1 || q.tail != -1 || q.size != 0 {
		t.Fatalf("queue not empty after removing only element: %+v", q)
	}
}

func TestReadyStopRoundTrip(t *testing.T) {
	k := newTestKernel(3)
	k.readyQ = newQueue()
	k.stopQ = newQueue()

	k.stop(0)
	if k.table[0].state != Stop || k.table[0].pid != InvalidPID {
		t.Fatalf("stop(0): state=%v pid=%d", k.table[0].state, k.table[0].pid)
	}

	k.table[0].pid = 7
	k.ready(0)
	if k.table[0].state != Ready {
		t.Fatalf("ready(0): state=%v, want Ready", k.table[0].state)
	}
	if got := k.next(); got != 0 {
		t.Fatalf("next(): got %d, want 0", got)
	}
}
