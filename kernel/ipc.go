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

// Synchronous rendezvous IPC. A transfer only ever happens when both
// sides are present at the same instant: one side always blocks
// first, and the other side's handler completes the copy directly
// instead of waking a third party to do it later.
//
// Matching direction: a PCB's own blocked_senders holds everyone
// blocked trying to send to it; its own blocked_receivers holds
// everyone blocked trying to receive from it. Both lists are always
// scanned and unlinked by the syscall the *owning* PCB is making, never
// by the peer.

// findPID returns the table index of the live PCB with the given pid,
// or -1 if none exists. Linear scan over a small fixed table.
func (k *Kernel) findPID(pid int) int {
	if pid == InvalidPID {
		return -1
	}
	for i := range k.table {
		p := &k.table[i]
		if p.pid == pid && p.state != Unused && p.state != Stop {
			return i
		}
	}
	return -1
}

// handleSend services the SEND request.
func (k *Kernel) handleSend(idx int, a sendArgs) {
	p := &k.table[idx]

	dstIdx := k.findPID(a.DstPID)
	if dstIdx == -1 || dstIdx == idx {
		// Nonexistent or self destination fails without blocking -
		// a self-send could otherwise park forever on its own wait
		// list with no peer left running to complete it.
		p.rc = ErrIPCProcNo
		k.ready(idx)
		return
	}

	// A receiver already waiting specifically for us sits on our own
	// blocked_receivers (enqueued there by handleRecv, see below); only
	// the one that is the send's destination may take this message.
	if rIdx := k.removeMatch(&p.blockedReceivers, func(cand int) bool {
		return k.table[cand].pid == a.DstPID
	}); rIdx != -1 {
		k.completeToWaitingReceiver(idx, a.Buf, rIdx)
		return
	}

	// Otherwise an ANY-receiver on the global queue may be waiting -
	// but only one waiting specifically as dstIdx: ANY means any
	// *sender* is acceptable to the receiver, not that any receiver on
	// the queue is an acceptable recipient of this send.
	if rIdx := k.removeMatch(&k.anyRecv, func(cand int) bool {
		return k.table[cand].pid == a.DstPID
	}); rIdx != -1 {
		k.completeToWaitingReceiver(idx, a.Buf, rIdx)
		return
	}

	// No one is waiting: block, parked on the destination's own
	// blocked_senders ("processes blocked trying to send to it").
	p.state = BlockOnSend
	p.args = a
	k.pushBack(&k.table[dstIdx].blockedSenders, idx)
}

// handleRecv services the RECV request. a.SrcPID is mutated in place to the actual sender's pid once a transfer
// completes (an ANY-receive resolves to a concrete peer); a is the
// same *recvArgs the caller's Proc.Recv shares across the trap.
func (k *Kernel) handleRecv(idx int, a *recvArgs) {
	p := &k.table[idx]

	if a.SrcPID == InvalidPID {
		// ANY: take the first sender already blocked trying to reach
		// us, if any; otherwise join the global any-receiver queue.
		if sIdx := k.popFront(&p.blockedSenders); sIdx != -1 {
			k.completeFromWaitingSender(sIdx, idx, a)
			return
		}
		p.state = BlockOnRecv
		p.args = a
		k.pushBack(&k.anyRecv, idx)
		return
	}

	srcIdx := k.findPID(a.SrcPID)
	if srcIdx == -1 || srcIdx == idx {
		p.rc = ErrIPCProcNo
		k.ready(idx)
		return
	}

	// A sender already blocked specifically trying to reach us is on
	// our own blocked_senders, tagged with the requested pid.
	if sIdx := k.removeMatch(&p.blockedSenders, func(cand int) bool {
		return k.table[cand].pid == a.SrcPID
	}); sIdx != -1 {
		k.completeFromWaitingSender(sIdx, idx, a)
		return
	}

	// No sender waiting yet: block on the sender's own
	// blocked_receivers ("processes blocked trying to receive from it").
	p.state = BlockOnRecv
	p.args = a
	k.pushBack(&k.table[srcIdx].blockedReceivers, idx)
}

// completeToWaitingReceiver finishes a SEND against a receiver (rIdx)
// that was already blocked, pulling its buffer out of the recvArgs it
// parked when it blocked (see handleRecv).
func (k *Kernel) completeToWaitingReceiver(srcIdx int, srcBuf []byte, rIdx int) {
	ra, ok := k.table[rIdx].args.(*recvArgs)
	k.invariant(ok, "IPC: blocked receiver pcb=%d missing recvArgs", rIdx)

	n := copy(ra.Buf, srcBuf)
	ra.SrcPID = k.table[srcIdx].pid
	k.finishTransfer(srcIdx, n, rIdx, n)
}

// completeFromWaitingSender finishes a RECV against a sender (sIdx)
// that was already blocked, pulling its buffer out of the sendArgs it
// parked when it blocked (see handleSend). a is the receiver's own
// in-flight args, updated with the resolved sender pid.
func (k *Kernel) completeFromWaitingSender(sIdx int, rIdx int, a *recvArgs) {
	sa, ok := k.table[sIdx].args.(sendArgs)
	k.invariant(ok, "IPC: blocked sender pcb=%d missing sendArgs", sIdx)

	n := copy(a.Buf, sa.Buf)
	a.SrcPID = k.table[sIdx].pid
	k.finishTransfer(sIdx, n, rIdx, n)
}

// finishTransfer wakes both sides of a completed rendezvous with the
// transferred byte count as each side's rc.
func (k *Kernel) finishTransfer(srcIdx, srcRC, rIdx, rRC int) {
	k.table[srcIdx].rc = srcRC
	k.table[srcIdx].args = nil
	k.ready(srcIdx)

	k.table[rIdx].rc = rRC
	k.table[rIdx].args = nil
	k.ready(rIdx)
}
