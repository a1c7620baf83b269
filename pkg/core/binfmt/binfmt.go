// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package binfmt writes the primitive values of the exported network format: 4-byte signed
// integers and 4-byte IEEE-754 floats, all in little-endian order.
//
// There is no framing: each call writes exactly the values given, and counts (when needed)
// must be written explicitly by the caller beforehand.
package binfmt

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ByteOrder used for every value written.
var ByteOrder = binary.LittleEndian

// ErrWrite is matched (with errors.Is) by every error returned by a Writer.
var ErrWrite = errors.New("write failed")

// WriteError describes which operation failed, and wraps the underlying I/O error.
type WriteError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *WriteError) Error() string {
	return "binfmt: failed to " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying I/O error.
func (e *WriteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrWrite) true for any WriteError.
func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// Writer writes int32 and float32 values to a buffered output.
//
// The first failure is sticky: once a write fails, all following calls return the same error.
// Call Flush at the end to push the buffered bytes.
type Writer struct {
	buf     *bufio.Writer
	count   int64
	err     error
	scratch [4]byte
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

// Count returns the number of bytes accepted so far (including those still buffered).
func (w *Writer) Count() int64 {
	return w.count
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) fail(op string, err error) error {
	w.err = &WriteError{Op: op, Err: err}
	return w.err
}

func (w *Writer) put(op string, bits uint32) error {
	ByteOrder.PutUint32(w.scratch[:], bits)
	n, err := w.buf.Write(w.scratch[:])
	w.count += int64(n)
	if err != nil {
		return w.fail(op, err)
	}
	return nil
}

// WriteInt32 writes one 4-byte signed integer.
func (w *Writer) WriteInt32(value int32) error {
	if w.err != nil {
		return w.err
	}
	return w.put("write int32", uint32(value))
}

// WriteInt32s writes the values with no count prefix.
func (w *Writer) WriteInt32s(values []int32) error {
	for _, v := range values {
		if err := w.WriteInt32(v); err != nil {
			return err
		}
	}
	return w.err
}

// WriteInts writes the values as 4-byte signed integers, with no count prefix.
// Values that don't fit an int32 fail the writer.
func (w *Writer) WriteInts(values []int) error {
	if w.err != nil {
		return w.err
	}
	for _, v := range values {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return w.fail("write int", errors.Errorf("value %d overflows int32", v))
		}
		if err := w.put("write int", uint32(int32(v))); err != nil {
			return err
		}
	}
	return nil
}

// WriteFloat32s writes the values as 4-byte IEEE-754 floats, with no count prefix.
func (w *Writer) WriteFloat32s(values []float32) error {
	if w.err != nil {
		return w.err
	}
	for _, v := range values {
		if err := w.put("write float32", math.Float32bits(v)); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.buf.Flush(); err != nil {
		return w.fail("flush", err)
	}
	return nil
}
