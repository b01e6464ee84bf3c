// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package alloc provides allocators for owning buffers.
//
// Host memory comes from the Go heap. Pinned memory is page-locked host
// memory mapped outside the heap. Device memory is a WebGPU buffer mapped
// into the process (Windows only). A Pool in front of any of them recycles
// freed blocks by size class.
//
// Example:
//
//	a, err := alloc.New(alloc.Options{Memory: buffer.Pinned, PinnedLock: true, PoolMaxBlocks: 64})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
package alloc

import (
	"github.com/born-ml/membuf/internal/alloc"
)

// Allocator is a buffer allocator that holds resources of its own.
type Allocator = alloc.Allocator

// Options selects and tunes the allocator built by New.
type Options = alloc.Options

// Host allocates from the Go heap.
type Host = alloc.Host

// Pinned allocates page-locked host memory.
type Pinned = alloc.Pinned

// Device allocates mapped WebGPU buffers.
type Device = alloc.Device

// Pool recycles blocks from another allocator.
type Pool = alloc.Pool

// PoolStats reports pool activity.
type PoolStats = alloc.Stats

// Errors.
var (
	ErrPinnedUnavailable = alloc.ErrPinnedUnavailable
	ErrDeviceUnavailable = alloc.ErrDeviceUnavailable
	ErrInvalidSize       = alloc.ErrInvalidSize
)

// New builds the allocator described by opts.
func New(opts Options) (Allocator, error) {
	return alloc.New(opts)
}

// NewHost returns a Go heap allocator.
func NewHost() *Host {
	return alloc.NewHost()
}

// NewPinned returns a page-locked host allocator. With lock set, pages are
// also locked into RAM.
func NewPinned(lock bool) *Pinned {
	return alloc.NewPinned(lock)
}

// NewDevice opens the default high-performance GPU adapter.
func NewDevice() (*Device, error) {
	return alloc.NewDevice()
}

// NewPool puts a pool holding at most maxBlocks blocks per size class in
// front of next.
func NewPool(next Allocator, maxBlocks int) *Pool {
	return alloc.NewPool(next, maxBlocks)
}
