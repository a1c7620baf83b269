// Package bintest reads back exported networks in tests.
//
// It follows the artifact layout byte by byte and keeps each layer's parameter block raw,
// so tests can check both the framing and the per-type parameter fields.
// It is not meant as a decoder for production use.
package bintest

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Reader consumes little-endian int32/float32 values from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Int32 reads one int32.
func (r *Reader) Int32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, errors.Errorf("truncated input: need 4 bytes at offset %d, %d left", r.pos, r.Remaining())
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

// Int32s reads n int32 values.
func (r *Reader) Int32s(n int) ([]int32, error) {
	if n < 0 {
		return nil, errors.Errorf("negative count %d at offset %d", n, r.pos)
	}
	values := make([]int32, n)
	for ii := range values {
		v, err := r.Int32()
		if err != nil {
			return nil, err
		}
		values[ii] = v
	}
	return values, nil
}

// Float32s reads n float32 values.
func (r *Reader) Float32s(n int) ([]float32, error) {
	ints, err := r.Int32s(n)
	if err != nil {
		return nil, err
	}
	values := make([]float32, n)
	for ii, v := range ints {
		values[ii] = math.Float32frombits(uint32(v))
	}
	return values, nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.Errorf("truncated input: need %d bytes at offset %d, %d left", n, r.pos, r.Remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Record of one exported layer.
type Record struct {
	Code   int32
	Bottom []int32
	Top    []int32
	Params []byte
}

// ParamReader returns a Reader over the record's parameter block.
func (rec *Record) ParamReader() *Reader {
	return NewReader(rec.Params)
}

// Artifact is a whole exported network.
type Artifact struct {
	Channels, Height, Width int32
	NumBlobs                int32
	Layers                  []Record
}

// Decode parses a complete artifact. Trailing bytes are an error.
func Decode(data []byte) (*Artifact, error) {
	r := NewReader(data)
	header, err := r.Int32s(5)
	if err != nil {
		return nil, errors.WithMessage(err, "reading header")
	}
	a := &Artifact{Channels: header[0], Height: header[1], Width: header[2], NumBlobs: header[3]}
	numLayers := int(header[4])
	for ii := 0; ii < numLayers; ii++ {
		rec, err := readRecord(r)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading layer record #%d", ii)
		}
		a.Layers = append(a.Layers, rec)
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("%d trailing bytes after %d layers", r.Remaining(), numLayers)
	}
	return a, nil
}

func readRecord(r *Reader) (rec Record, err error) {
	if rec.Code, err = r.Int32(); err != nil {
		return
	}
	var n int32
	if n, err = r.Int32(); err != nil {
		return
	}
	if rec.Bottom, err = r.Int32s(int(n)); err != nil {
		return
	}
	if n, err = r.Int32(); err != nil {
		return
	}
	if rec.Top, err = r.Int32s(int(n)); err != nil {
		return
	}
	if n, err = r.Int32(); err != nil {
		return
	}
	rec.Params, err = r.Bytes(int(n))
	return
}
