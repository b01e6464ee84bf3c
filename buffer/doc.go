// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package buffer provides typed, contiguous memory buffers for inference
// engines.
//
// A Buffer records its element type, its element count (size), how many
// elements fit without reallocation (capacity) and the memory class it
// lives in. Buffers come in three flavors:
//   - owning buffers from Allocate, which reallocate when grown
//   - wrapped buffers from Wrap and WrapSlice, which borrow caller memory
//   - views from Slice and View, which share another buffer's storage
//
// Typed access goes through Cast, which checks the host type against the
// buffer's data type, or through a Range for index and iterator access.
//
// Example:
//
//	a, _ := alloc.New(alloc.Options{Memory: buffer.CPU})
//	b, _ := buffer.Allocate(a, buffer.TagOf[float32](), 8)
//	defer b.Release()
//
//	xs, _ := buffer.MutableCast[float32](b)
//	xs[0] = 1
//
//	tail, _ := buffer.SliceFrom(b, 4)
//	fmt.Println(tail) // [float32 size=4 capacity=4 memory=CPU]
package buffer
