// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model holds the in-memory representation of a trained network: its blobs
// (tensors), its layers and the declared input shape.
//
// A Model is built once by a loader (see package caffe), consumed read-only by the
// exporter and then discarded. Tensors are referred to by their id, which is their
// index in Model.Blobs.
//
// Layers[0] is always the implicit input layer: it only produces the input blob(s) and
// is never exported.
package model

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidInputShape is returned when a model doesn't declare exactly one input with at
	// least 4 dimensions (batch, channel, height, width).
	ErrInvalidInputShape = errors.New("invalid declared input shape")

	// ErrInvalidBlob is returned when a blob's data doesn't match its shape.
	ErrInvalidBlob = errors.New("invalid blob")

	// ErrInvalidModel is returned by Model.Validate for structural problems.
	ErrInvalidModel = errors.New("invalid model")
)

// Blob is a named tensor.
//
// Learned parameters hold their values in Data, with len(Data) == Shape.Count().
// Intermediate activations have a nil Data (and usually an unknown, zero Shape).
type Blob struct {
	Name  string
	Shape Shape
	Data  []float32
}

// NewBlob creates a zero-filled blob with the given shape.
func NewBlob(name string, shape Shape) *Blob {
	return &Blob{Name: name, Shape: shape, Data: make([]float32, shape.Count())}
}

// Count returns the number of elements of the blob, as given by its shape.
func (b *Blob) Count() int {
	return b.Shape.Count()
}

// CheckData returns ErrInvalidBlob if the blob's data length doesn't match its shape.
func (b *Blob) CheckData() error {
	if len(b.Data) != b.Shape.Count() {
		return errors.Wrapf(ErrInvalidBlob, "blob %q has shape %s (%d elements) but holds %d values",
			b.Name, b.Shape, b.Shape.Count(), len(b.Data))
	}
	return nil
}

// Model is a loaded network graph.
type Model struct {
	// Name of the network, informative only.
	Name string

	// InputShapes holds the declared shape of each input, typically (batch, channel, height, width).
	InputShapes [][]int

	// Blobs lists every tensor of the graph, in creation order. The position is the tensor id.
	Blobs []*Blob

	// Layers in topological (loading) order. Layers[0] is the implicit input layer.
	Layers []*Layer
}

// InputCHW returns the channel, height and width of the single declared input -- the batch
// dimension is dropped.
//
// It returns ErrInvalidInputShape if there isn't exactly one declared input with at least 4 dimensions.
func (m *Model) InputCHW() (channels, height, width int32, err error) {
	if len(m.InputShapes) != 1 {
		err = errors.Wrapf(ErrInvalidInputShape, "model %q declares %d inputs, exactly 1 is supported",
			m.Name, len(m.InputShapes))
		return
	}
	dims := m.InputShapes[0]
	if len(dims) < 4 {
		err = errors.Wrapf(ErrInvalidInputShape, "model %q input has dimensions %v, at least 4 (batch, channel, height, width) are required",
			m.Name, dims)
		return
	}
	for _, dim := range dims[1:4] {
		if dim < 0 || dim > maxInt32 {
			err = errors.Wrapf(ErrInvalidInputShape, "model %q input dimensions %v out of range", m.Name, dims)
			return
		}
	}
	return int32(dims[1]), int32(dims[2]), int32(dims[3]), nil
}

const maxInt32 = 1<<31 - 1

// AddBlob appends a new blob with the given name and returns its id.
func (m *Model) AddBlob(name string) int {
	m.Blobs = append(m.Blobs, &Blob{Name: name})
	return len(m.Blobs) - 1
}

// BlobID returns the id of the last blob with the given name, or -1 if there is none.
func (m *Model) BlobID(name string) int {
	for id := len(m.Blobs) - 1; id >= 0; id-- {
		if m.Blobs[id].Name == name {
			return id
		}
	}
	return -1
}

// LayerByName returns the first layer with the given name, or nil.
func (m *Model) LayerByName(name string) *Layer {
	for _, layer := range m.Layers {
		if layer.Name == name {
			return layer
		}
	}
	return nil
}

// NumParams returns the total number of learned values over all layers.
func (m *Model) NumParams() int {
	var total int
	for _, layer := range m.Layers {
		for _, blob := range layer.Params {
			total += blob.Count()
		}
	}
	return total
}

// Validate checks the structure a loader must guarantee: an input layer at position 0,
// tensor ids within range, and learned blobs whose data matches their shapes.
//
// The exporter doesn't call it: it trusts the loader.
func (m *Model) Validate() error {
	if len(m.Layers) == 0 {
		return errors.Wrapf(ErrInvalidModel, "model %q has no layers, not even the input layer", m.Name)
	}
	for ii, layer := range m.Layers {
		for _, ids := range [][]int{layer.Bottom, layer.Top} {
			for _, id := range ids {
				if id < 0 || id >= len(m.Blobs) {
					return errors.Wrapf(ErrInvalidModel, "layer #%d %q refers to tensor id %d, but there are only %d tensors",
						ii, layer.Name, id, len(m.Blobs))
				}
			}
		}
		for _, blob := range layer.Params {
			if err := blob.CheckData(); err != nil {
				return errors.WithMessagef(err, "layer #%d %q", ii, layer.Name)
			}
		}
	}
	return nil
}
