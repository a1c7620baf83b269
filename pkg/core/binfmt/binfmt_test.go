package binfmt

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLittleEndian(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	require.NoError(t, w.WriteInt32(1))
	require.NoError(t, w.WriteInt32(-2))
	require.NoError(t, w.WriteInts([]int{0x01020304}))
	require.NoError(t, w.WriteFloat32s([]float32{1.0}))
	assert.Equal(t, int64(16), w.Count())
	assert.Equal(t, 0, out.Len(), "nothing should reach the output before Flush")
	require.NoError(t, w.Flush())

	want := []byte{
		0x01, 0x00, 0x00, 0x00,
		0xfe, 0xff, 0xff, 0xff,
		0x04, 0x03, 0x02, 0x01,
		0x00, 0x00, 0x80, 0x3f,
	}
	assert.Equal(t, want, out.Bytes())
}

func TestWriterNoPrefix(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	require.NoError(t, w.WriteInt32s(nil))
	require.NoError(t, w.WriteFloat32s([]float32{}))
	require.NoError(t, w.Flush())
	assert.Equal(t, 0, out.Len())

	require.NoError(t, w.WriteFloat32s([]float32{float32(math.Inf(-1)), 0.5}))
	require.NoError(t, w.WriteInt32s([]int32{7, 8}))
	require.NoError(t, w.Flush())
	require.Equal(t, 16, out.Len())
	assert.Equal(t, math.Float32bits(0.5), ByteOrder.Uint32(out.Bytes()[4:8]))
	assert.Equal(t, uint32(8), ByteOrder.Uint32(out.Bytes()[12:16]))
}

func TestWriterOverflow(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.WriteInts([]int{1, math.MaxInt32 + 1})
	require.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, int64(4), w.Count())
	// Sticky error.
	assert.Same(t, err, w.WriteInt32(3))
	assert.Same(t, err, w.Flush())
}

type failingWriter struct {
	after int
}

var errDiskFull = errors.New("disk full")

func (f *failingWriter) Write(p []byte) (int, error) {
	if len(p) > f.after {
		n := f.after
		f.after = 0
		return n, errDiskFull
	}
	f.after -= len(p)
	return len(p), nil
}

func TestWriterIOError(t *testing.T) {
	w := NewWriter(&failingWriter{after: 2})
	require.NoError(t, w.WriteInt32(1), "buffered write shouldn't fail yet")
	err := w.Flush()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, errDiskFull)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "flush", writeErr.Op)
	assert.ErrorIs(t, w.WriteFloat32s([]float32{1}), errDiskFull)
	assert.Equal(t, err, w.Err())
}
