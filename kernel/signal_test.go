// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kernel

import (
	"sync"
	"testing"
)

// TestSigHandlerSwapRoundTrip: installing h2 over h1 and then
// reinstalling what came back leaves
// the table at h1 with h2 handed back out. Handler funcs aren't
// comparable in Go, so identity is proven by invoking what each swap
// returned and checking which marker it records.
func TestSigHandlerSwapRoundTrip(t *testing.T) {
	k := New(Config{ProcSz: 4})

	var got []string
	mark := func(tag string) SignalHandler {
		return func(*Proc) { got = append(got, tag) }
	}
	h1 := mark("h1")
	h2 := mark("h2")

	done := make(chan struct{})
	k.Spawn(func(p *Proc) {
		if _, rc := p.SigHandler(4, h1); rc != 0 {
			t.Errorf("install h1 rc = %d, want 0", rc)
		}
		old1, rc := p.SigHandler(4, h2)
		if rc != 0 {
			t.Errorf("install h2 rc = %d, want 0", rc)
		}
		old2, rc := p.SigHandler(4, old1)
		if rc != 0 {
			t.Errorf("reinstall old rc = %d, want 0", rc)
		}
		old1(nil) // must be h1: it was installed first
		old2(nil) // must be h2: it was what the reinstall displaced
		close(done)
		p.StopSelf()
	}, 0)

	runUntilClosed(t, k, done, 20)

	if len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Fatalf("swap identity markers = %v, want [h1 h2]", got)
	}
}

// TestSigHandlerRejectsReservedAndOutOfRange: slot 0 is reserved and
// 32 signal slots exist, so both ends fail with ERR_SIGNAL_SIG_NO;
// SIG_KILL remaps the same failures to ERR_SIGKILL_*.
func TestSigHandlerRejectsReservedAndOutOfRange(t *testing.T) {
	k := New(Config{ProcSz: 4})

	done := make(chan struct{})
	k.Spawn(func(p *Proc) {
		if _, rc := p.SigHandler(0, func(*Proc) {}); rc != ErrSignalSigNo {
			t.Errorf("SigHandler(0) rc = %d, want ErrSignalSigNo (%d)", rc, ErrSignalSigNo)
		}
		if _, rc := p.SigHandler(numSignals, func(*Proc) {}); rc != ErrSignalSigNo {
			t.Errorf("SigHandler(32) rc = %d, want ErrSignalSigNo (%d)", rc, ErrSignalSigNo)
		}
		if rc := p.SigKill(p.PID(), numSignals); rc != ErrSigkillSigNo {
			t.Errorf("SigKill(self, 32) rc = %d, want ErrSigkillSigNo (%d)", rc, ErrSigkillSigNo)
		}
		if rc := p.SigKill(9999, 4); rc != ErrSigkillProcNo {
			t.Errorf("SigKill(9999, 4) rc = %d, want ErrSigkillProcNo (%d)", rc, ErrSigkillProcNo)
		}
		close(done)
		p.StopSelf()
	}, 0)

	runUntilClosed(t, k, done, 20)
}

// TestSigKillWakesSleeperWithResidual: a signal posted to a SLEEP
// process removes it from the
// delta queue early, runs the installed handler, and then Sleep
// returns the residual milliseconds the process did not sleep.
func TestSigKillWakesSleeperWithResidual(t *testing.T) {
	k := New(Config{ProcSz: 4, TickMS: 10})

	var mu sync.Mutex
	var handlerRuns int
	var sleepRC int
	done := make(chan struct{})

	pid := k.Spawn(func(p *Proc) {
		p.SigHandler(5, func(*Proc) {
			mu.Lock()
			handlerRuns++
			mu.Unlock()
		})
		sleepRC = p.Sleep(100)
		close(done)
		p.StopSelf()
	}, 0)

	k.Step() // SigHandler trap
	k.Step() // Sleep trap

	idx := k.findPID(pid)
	if idx == -1 || k.table[idx].state != Sleep {
		t.Fatalf("sleeper not asleep after Sleep trap")
	}

	// Four of the ten requested ticks elapse before the signal lands.
	for i := 0; i < 4; i++ {
		if woke := k.tick(); woke {
			k.wake()
		}
	}

	if rc := k.postSignal(pid, 5); rc != 0 {
		t.Fatalf("postSignal rc = %d, want 0", rc)
	}
	if k.table[idx].state != Ready {
		t.Fatalf("sleeper state after signal = %v, want Ready", k.table[idx].state)
	}

	runUntilClosed(t, k, done, 20)

	mu.Lock()
	defer mu.Unlock()
	if handlerRuns != 1 {
		t.Fatalf("handler ran %d times, want 1", handlerRuns)
	}
	if sleepRC != 60 {
		t.Fatalf("Sleep(100) woken after 4 of 10 ticks returned %d, want 60 residual ms", sleepRC)
	}
}

// TestSigWaitBlocksUntilSignal: SIG_WAIT parks the caller in
// BLOCK_ON_SIG with no queue membership, and a later signal releases
// it with the signal number as its return value.
func TestSigWaitBlocksUntilSignal(t *testing.T) {
	k := New(Config{ProcSz: 4})

	var waited int
	done := make(chan struct{})
	pid := k.Spawn(func(p *Proc) {
		waited = p.SigWait()
		close(done)
		p.StopSelf()
	}, 0)

	k.Step() // SigWait trap

	idx := k.findPID(pid)
	if idx == -1 || k.table[idx].state != BlockOnSig {
		t.Fatalf("waiter not in BLOCK_ON_SIG after SigWait trap")
	}

	if rc := k.postSignal(pid, 7); rc != 0 {
		t.Fatalf("postSignal rc = %d, want 0", rc)
	}

	runUntilClosed(t, k, done, 20)

	if waited != 7 {
		t.Fatalf("SigWait returned %d, want 7", waited)
	}
}

// TestPostSignalMissingTarget: the kernel-internal signal() reports
// ERR_SIGNAL_PROC_NO for a pid that never existed and for one that
// has STOPped.
func TestPostSignalMissingTarget(t *testing.T) {
	k := New(Config{ProcSz: 4})

	pid := k.Spawn(func(p *Proc) {}, 0)
	k.Step() // empty body implicitly self-stops

	if rc := k.postSignal(pid, 3); rc != ErrSignalProcNo {
		t.Fatalf("postSignal to stopped pid rc = %d, want ErrSignalProcNo (%d)", rc, ErrSignalProcNo)
	}
	if rc := k.postSignal(12345, 3); rc != ErrSignalProcNo {
		t.Fatalf("postSignal to unknown pid rc = %d, want ErrSignalProcNo (%d)", rc, ErrSignalProcNo)
	}
}
