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

// Per-request argument structs. Each trap carries exactly one of
// these through request.Args, so every handler unpacks a typed value
// instead of an untyped variadic list.

type createArgs struct {
	Entry   ProcFunc
	StackSz int
}

type putsArgs struct {
	Str string
}

type sleepArgs struct {
	MS int
}

type sendArgs struct {
	DstPID int
	Buf    []byte
}

type recvArgs struct {
	SrcPID int // 0 means ANY, updated in place by the kernel on match
	Buf    []byte
}

type sigHandlerArgs struct {
	SigNo   uint32
	NewH    SignalHandler
	OldHPtr *SignalHandler
}

type sigReturnArgs struct {
	OldRC         int
	OldIgnoreMask uint32
}

type sigKillArgs struct {
	PID   int
	SigNo uint32
}

type devOpenArgs struct {
	DevNo int
}

type devCloseArgs struct {
	FD int
}

type devReadArgs struct {
	FD  int
	Buf []byte
}

type devWriteArgs struct {
	FD  int
	Buf []byte
}

type devIoctlArgs struct {
	FD  int
	Cmd uint64
	Arg any
}
