// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves and loads buffers.
//
// The native .bbuf format stores named buffers with their data types behind
// a checksummed header; each buffer starts on a 64-byte boundary so a mapped
// file can be used in place. SafeTensors export and import are provided for
// exchanging flat tensors with other tools.
//
// Example:
//
//	err := serialization.WriteFile("kv.bbuf", []serialization.NamedBuffer{
//	    {Name: "keys", Buffer: keys},
//	    {Name: "values", Buffer: values},
//	}, nil)
//
//	r, err := serialization.NewMmapReader("kv.bbuf")
//	defer r.Close()
//	keys, err := r.Buffer("keys") // zero-copy
package serialization

import (
	"io"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/serialization"
)

// Type aliases for public API

// NamedBuffer pairs a buffer with the name it is stored under.
type NamedBuffer = serialization.NamedBuffer

// Header is the JSON header of a .bbuf file.
type Header = serialization.Header

// BufferMeta describes one stored buffer.
type BufferMeta = serialization.BufferMeta

// Writer writes .bbuf files.
type Writer = serialization.Writer

// Reader loads .bbuf files into allocated buffers.
type Reader = serialization.Reader

// ReaderOptions configures a Reader.
type ReaderOptions = serialization.ReaderOptions

// MmapReader maps .bbuf files for zero-copy access.
type MmapReader = serialization.MmapReader

// ValidationLevel controls how strictly headers are checked.
type ValidationLevel = serialization.ValidationLevel

// ValidationError describes a header validation failure.
type ValidationError = serialization.ValidationError

// Validation levels.
const (
	ValidationStrict = serialization.ValidationStrict
	ValidationNormal = serialization.ValidationNormal
	ValidationNone   = serialization.ValidationNone
)

// Errors.
var (
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
	ErrBufferNotFound   = serialization.ErrBufferNotFound
	ErrInvalidMagic     = serialization.ErrInvalidMagic
	ErrClosed           = serialization.ErrClosed
)

// NewWriter creates a .bbuf file at path.
func NewWriter(path string) (*Writer, error) {
	return serialization.NewWriter(path)
}

// WriteFile writes buffers to a new .bbuf file.
func WriteFile(path string, buffers []NamedBuffer, metadata map[string]string) error {
	return serialization.WriteFile(path, buffers, metadata)
}

// WriteTo writes buffers to out in .bbuf format.
func WriteTo(out io.Writer, buffers []NamedBuffer, metadata map[string]string) error {
	return serialization.WriteTo(out, buffers, metadata)
}

// ReadFrom reads every buffer from a .bbuf stream.
func ReadFrom(in io.Reader, a buffer.Allocator) (map[string]buffer.Buffer, Header, error) {
	return serialization.ReadFrom(in, a)
}

// NewReader opens a .bbuf file with strict validation.
func NewReader(path string) (*Reader, error) {
	return serialization.NewReader(path)
}

// NewReaderWithOptions opens a .bbuf file with custom options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	return serialization.NewReaderWithOptions(path, opts)
}

// NewMmapReader maps a .bbuf file read-only.
func NewMmapReader(path string) (*MmapReader, error) {
	return serialization.NewMmapReader(path)
}

// WriteSafeTensors exports buffers as 1-D SafeTensors tensors.
func WriteSafeTensors(path string, buffers map[string]buffer.ConstBuffer, metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, buffers, metadata)
}

// ReadSafeTensors imports every tensor of a SafeTensors file as a flat buffer.
func ReadSafeTensors(path string, a buffer.Allocator) (map[string]buffer.Buffer, map[string]string, error) {
	return serialization.ReadSafeTensors(path, a)
}

// IsCorrupt reports whether err means the file content cannot be trusted.
func IsCorrupt(err error) bool {
	return serialization.IsCorrupt(err)
}
