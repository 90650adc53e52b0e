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

// Command xeroskernel boots the dispatcher core against real wall
// clock time and a real keyboard. There is no binary to load - the
// "program" is whatever Spawn installs as the first process - so this
// command's job is entirely environment setup: terminal raw mode, the
// PIT/keyboard pumps, and clean shutdown.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/xeroskernel-go/xeroskernel/devices"
	"github.com/xeroskernel-go/xeroskernel/kernel"
)

var (
	traceFile = flag.String("trace", "", "write a per-dispatch trace to this file")
	tickMS    = flag.Int("tick-ms", 10, "PIT quantum in milliseconds")
	procSz    = flag.Int("proc-sz", 32, "fixed process table size")
	noSerial  = flag.Bool("no-serial", false, "don't open a pty-backed serial device")
)

var savedTermState *term.State

func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal state: %w", err)
	}
	savedTermState = state
	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}

// rootProc is the first process the kernel runs - the role a boot
// loader's root process plays on real hardware. It opens the console
// device and echoes whatever characters the keyboard feeds it, so
// booting the binary against a real terminal demonstrates PUTS,
// DEV_OPEN, and a blocking DEV_READ all actually working end to end.
func rootProc(p *kernel.Proc) {
	p.Puts(fmt.Sprintf("xeroskernel: root process %d running\r\n", p.GetPID()))

	fd := p.DevOpen(0)
	if fd < 0 {
		p.Puts("xeroskernel: console open failed\r\n")
		p.StopSelf()
	}
	defer p.DevClose(fd)

	buf := make([]byte, 64)
	for {
		n := p.DevRead(fd, buf)
		if n < 0 {
			// Negative here means a real driver error, not
			// would-block: DevRead only returns once the kernel has
			// already retried the would-block case for us.
			p.Sleep(100)
			continue
		}
		p.DevWrite(fd, buf[:n])
	}
}

// pumpKeyboard forwards raw bytes read from in to kbd, one per Post
// call, as a keyboard controller's lower half would forward one scan
// code per IRQ. The decoder expects a genuine scan-code source; a
// plain ASCII terminal produces bytes devices.ScanDecoder won't
// decode usefully, the same limitation real scan-code hardware has
// with anything but its own keyboard controller.
func pumpKeyboard(in *os.File, kbd *kernel.RealKeyboard) {
	buf := make([]byte, 16)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			kbd.Post(buf[i])
		}
	}
}

func main() {
	flag.Parse()

	var traceOut io.Writer
	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "xeroskernel: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		traceOut = f
	}

	if err := setupTerminal(); err != nil {
		fmt.Fprintf(os.Stderr, "xeroskernel: %v\n", err)
		os.Exit(1)
	}
	defer restoreTerminal()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigCh
		restoreTerminal()
		os.Exit(130)
	}()

	console := devices.NewConsole(os.Stdout)
	devs := []kernel.Device{console}

	if !*noSerial {
		s, err := devices.NewSerial()
		if err != nil {
			fmt.Fprintf(os.Stderr, "xeroskernel: serial device unavailable: %v\n", err)
		} else {
			devs = append(devs, s)
			defer s.Shutdown()
		}
	}

	pit := kernel.NewRealPIT(time.Duration(*tickMS) * time.Millisecond)
	defer pit.Stop()
	kbd := kernel.NewRealKeyboard()
	go pumpKeyboard(os.Stdin, kbd)

	k := kernel.New(kernel.Config{
		ProcSz:   *procSz,
		PIT:      pit,
		Keyboard: kbd,
		Devices:  devs,
		Trace:    traceOut,
		TickMS:   *tickMS,
		Console:  os.Stdout,
	})

	if pid := k.Spawn(rootProc, 0); pid == 0 {
		fmt.Fprintln(os.Stderr, "xeroskernel: failed to spawn root process")
		os.Exit(1)
	}

	k.Run()
}
