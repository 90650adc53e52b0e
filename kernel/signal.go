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

// Signals: 32 slots, higher number = higher priority, delivery via a
// trampoline frame that re-enters the kernel through SIG_RETURN when
// the handler finishes.
//
// Mask polarity: a set bit in sig_ignore_mask means deliverable.
// Delivering signal class s clears the enable bits for classes 0..s
// to prevent re-entry at equal-or-lower priority, restored verbatim
// by SIG_RETURN.

const maxSigNo = numSignals - 1

// classMask returns the bitmask of every signal class at or below
// sigNo's priority - exactly the bits numbered 0..sigNo, since a
// higher signal number means higher priority.
func classMask(sigNo uint32) uint32 {
	if sigNo >= 31 {
		return ^uint32(0)
	}
	return (uint32(1) << (sigNo + 1)) - 1
}

// highestBit returns the highest-numbered set bit in mask, or
// ok=false for an empty mask.
func highestBit(mask uint32) (sigNo uint32, ok bool) {
	if mask == 0 {
		return 0, false
	}
	for i := numSignals - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// deliverable returns the highest-numbered (highest-priority) pending
// signal that is currently enabled, or ok=false if none is.
func deliverable(p *PCB) (sigNo uint32, ok bool) {
	return highestBit(p.sigPendMask & p.sigIgnoreMask)
}

// pendingHighest returns the highest-numbered pending signal with no
// regard for the enable mask. SIG_WAIT consumes signals through this
// instead of deliverable(): a process parked in sigwait is explicitly
// asking for the next signal, not being interrupted by one, so the
// re-entry masking that protects handler delivery does not apply.
func pendingHighest(p *PCB) (sigNo uint32, ok bool) {
	return highestBit(p.sigPendMask)
}

// prepareSignal is called by the dispatcher immediately before
// resuming a process via contextSwitch - delivery is checked before
// every resume, not only on trap return. It returns nil when nothing
// is deliverable, leaving rc as the dispatcher already set it.
func (k *Kernel) prepareSignal(idx int) *sigFrame {
	p := &k.table[idx]
	sigNo, ok := deliverable(p)
	if !ok {
		return nil
	}
	p.sigPendMask &^= 1 << sigNo

	f := &sigFrame{
		sigNo:         sigNo,
		handler:       p.sigHandlers[sigNo],
		oldRC:         p.rc,
		oldIgnoreMask: p.sigIgnoreMask,
	}
	p.sigIgnoreMask &^= classMask(sigNo)
	return f
}

// handleSigHandlerReq services the SIG_HANDLER request: installs
// a.NewH for a.SigNo, writing the previously installed handler to
// *a.OldHPtr. Slot 0 is reserved and cannot take a handler.
func (k *Kernel) handleSigHandlerReq(idx int, a sigHandlerArgs) {
	p := &k.table[idx]
	if a.SigNo == 0 || a.SigNo > maxSigNo {
		p.rc = ErrSignalSigNo
		k.ready(idx)
		return
	}
	if a.OldHPtr != nil {
		*a.OldHPtr = p.sigHandlers[a.SigNo]
	}
	p.sigHandlers[a.SigNo] = a.NewH
	// Installing a handler is what arms the signal for delivery;
	// installing nil disarms it again.
	if a.NewH != nil {
		p.sigIgnoreMask |= 1 << a.SigNo
	} else {
		p.sigIgnoreMask &^= 1 << a.SigNo
	}
	p.rc = 0
	k.ready(idx)
}

// handleSigReturn services the implicit SIG_RETURN a delivered
// handler issues on return (trap.go's Proc.runSignal), restoring the
// pre-signal rc and ignore mask exactly.
func (k *Kernel) handleSigReturn(idx int, a sigReturnArgs) {
	p := &k.table[idx]
	p.sigIgnoreMask = a.OldIgnoreMask
	p.rc = a.OldRC
	k.ready(idx)
}

// postSignal is the kernel-internal signal primitive: it sets sigNo
// pending on pid, waking the target immediately if it is sleeping
// (with the residual sleep time as its rc) or blocked in SIG_WAIT.
// Returns 0 or an ERR_SIGNAL_* code.
func (k *Kernel) postSignal(pid int, sigNo uint32) int {
	if sigNo > maxSigNo {
		return ErrSignalSigNo
	}
	tgtIdx := k.findPID(pid)
	if tgtIdx == -1 {
		return ErrSignalProcNo
	}

	t := &k.table[tgtIdx]
	t.sigPendMask |= 1 << sigNo

	switch t.state {
	case Sleep:
		k.wakeEarly(tgtIdx)
	case BlockOnSig:
		if ready, ok := pendingHighest(t); ok {
			t.sigPendMask &^= 1 << ready
			t.rc = int(ready)
			k.ready(tgtIdx)
		}
	}
	return 0
}

// handleSigKillReq services the SIG_KILL request, remapping
// postSignal's ERR_SIGNAL_* codes to their ERR_SIGKILL_* user-facing
// forms.
func (k *Kernel) handleSigKillReq(idx int, a sigKillArgs) {
	p := &k.table[idx]
	switch k.postSignal(a.PID, a.SigNo) {
	case ErrSignalSigNo:
		p.rc = ErrSigkillSigNo
	case ErrSignalProcNo:
		p.rc = ErrSigkillProcNo
	default:
		p.rc = 0
	}
	k.ready(idx)
}

// handleSigWait services SIG_WAIT: blocks the caller until a signal
// is pending, returning its number directly as rc rather than running
// it through a handler - the synchronous counterpart to handler-based
// delivery, for processes with no handler installed.
func (k *Kernel) handleSigWait(idx int) {
	p := &k.table[idx]
	if sigNo, ok := pendingHighest(p); ok {
		p.sigPendMask &^= 1 << sigNo
		p.rc = int(sigNo)
		k.ready(idx)
		return
	}
	p.state = BlockOnSig
}

// wakeEarly removes idx from the sleep queue ahead of its scheduled
// wake, crediting the remaining ticks to the next entry (so the delta
// chain stays consistent) and returning the unslept milliseconds in
// rc.
func (k *Kernel) wakeEarly(idx int) {
	prev := -1
	cur := k.sleepQ.head
	remaining := 0
	for cur != -1 {
		remaining += k.table[cur].deltaSlice
		if cur == idx {
			break
		}
		prev = cur
		cur = k.table[cur].next
	}
	k.invariant(cur == idx, "wakeEarly: pcb=%d not on sleep queue", idx)

	next := k.table[idx].next
	if next != -1 {
		k.table[next].deltaSlice += k.table[idx].deltaSlice
	}
	if prev == -1 {
		k.sleepQ.head = next
	} else {
		k.table[prev].next = next
	}
	if k.sleepQ.tail == idx {
		k.sleepQ.tail = prev
	}
	k.sleepQ.size--
	k.table[idx].next = -1

	tickMS := k.tickMS
	if tickMS <= 0 {
		tickMS = defaultTickMS
	}
	k.table[idx].rc = remaining * tickMS
	k.ready(idx)
}
