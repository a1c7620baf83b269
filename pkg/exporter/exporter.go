// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package exporter writes a loaded model.Model as the sequential binary artifact read by the
// inference runtime.
//
// Layout (all values are little-endian int32, weights float32):
//
//	channels, height, width     -- the declared input shape, batch dropped
//	number of tensors
//	number of exported layers   -- all layers but the implicit input layer
//	per layer:
//	  type code
//	  number of bottoms, bottom tensor ids
//	  number of tops, top tensor ids
//	  parameter block size, parameter block   -- see package layertypes
//
// Any unsupported layer type aborts the export: the output must then be considered unusable.
// WriteFile never leaves a partially written file at the destination.
//
// Example:
//
//	report, err := exporter.New(m).WriteFile("net.bin")
package exporter

import (
	"io"

	"github.com/gomlx/netbin/pkg/core/binfmt"
	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/gomlx/netbin/pkg/layertypes"
	"github.com/gomlx/netbin/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LayerRecord summarizes what was written for one layer.
type LayerRecord struct {
	// Index of the layer in the model (the input layer is 0, so exported layers start at 1).
	Index int
	Name  string
	Type  string
	Code  layertypes.Code

	Bottom, Top []int

	// ParamBytes is the declared size of the parameter block.
	ParamBytes int32
}

// Report of a successful export.
type Report struct {
	Channels, Height, Width int32
	NumBlobs                int
	Layers                  []LayerRecord

	// Bytes is the total size of the artifact.
	Bytes int64
}

// Exporter writes one model. Configure it with its methods before calling Write or WriteFile.
type Exporter struct {
	model    *model.Model
	registry *layertypes.Registry
	onLayer  func(index int, layer *model.Layer)
}

// New creates an Exporter for m, using the default layer types registry.
//
// The model is only read, and the same model always produces the same bytes.
func New(m *model.Model) *Exporter {
	return &Exporter{model: m, registry: layertypes.Default()}
}

// WithRegistry sets the registry used to resolve layer types.
func (e *Exporter) WithRegistry(r *layertypes.Registry) *Exporter {
	e.registry = r
	return e
}

// OnLayer sets a function called after each layer record is written, e.g. to drive a progress bar.
// index goes from 1 to len(model.Layers)-1.
func (e *Exporter) OnLayer(fn func(index int, layer *model.Layer)) *Exporter {
	e.onLayer = fn
	return e
}

// Write the artifact to w.
//
// On error, w may have received a prefix of the artifact (whatever was written before the failure),
// and the returned Report is nil.
func (e *Exporter) Write(w io.Writer) (*Report, error) {
	bw := binfmt.NewWriter(w)
	report, err := e.write(bw)
	// Push what was written even on failure, so the prefix is well-defined.
	if flushErr := bw.Flush(); err == nil && flushErr != nil {
		err = errors.WithMessage(flushErr, "exporting model")
	}
	if err != nil {
		return nil, err
	}
	report.Bytes = bw.Count()
	return report, nil
}

// WriteFile writes the artifact to a temporary file next to path, and renames it to path on success.
// On failure, path is left untouched.
func (e *Exporter) WriteFile(path string) (*Report, error) {
	f, err := fsutil.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	defer f.Abort()
	report, err := e.Write(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "exporting to %q", path)
	}
	if err = f.Commit(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("wrote %d bytes to %q", report.Bytes, path)
	return report, nil
}

func (e *Exporter) write(w *binfmt.Writer) (*Report, error) {
	m := e.model
	channels, height, width, err := m.InputCHW()
	if err != nil {
		return nil, err
	}
	if len(m.Layers) == 0 {
		return nil, errors.Wrapf(model.ErrInvalidModel, "model %q has no input layer", m.Name)
	}
	report := &Report{
		Channels: channels, Height: height, Width: width,
		NumBlobs: len(m.Blobs),
		Layers:   make([]LayerRecord, 0, len(m.Layers)-1),
	}
	if err := w.WriteInt32s([]int32{channels, height, width}); err != nil {
		return nil, err
	}
	if err := w.WriteInts([]int{len(m.Blobs), len(m.Layers) - 1}); err != nil {
		return nil, err
	}
	klog.V(1).Infof("model %q: input (%d, %d, %d), %d tensors, %d layers",
		m.Name, channels, height, width, len(m.Blobs), len(m.Layers)-1)

	for index := 1; index < len(m.Layers); index++ {
		layer := m.Layers[index]
		record, err := e.writeLayer(w, index, layer)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer #%d %q", index, layer.Name)
		}
		report.Layers = append(report.Layers, record)
		if e.onLayer != nil {
			e.onLayer(index, layer)
		}
	}
	return report, nil
}

// writeLayer writes one record. The type is resolved before anything is written, so an
// unsupported layer leaves no partial record behind.
func (e *Exporter) writeLayer(w *binfmt.Writer, index int, layer *model.Layer) (LayerRecord, error) {
	entry, err := e.registry.Lookup(layer.Type)
	if err != nil {
		return LayerRecord{}, err
	}
	paramBytes, err := entry.ParamSize(layer)
	if err != nil {
		return LayerRecord{}, err
	}
	if err := w.WriteInt32(int32(entry.Code)); err != nil {
		return LayerRecord{}, err
	}
	for _, ids := range [][]int{layer.Bottom, layer.Top} {
		if err := w.WriteInts([]int{len(ids)}); err != nil {
			return LayerRecord{}, err
		}
		if err := w.WriteInts(ids); err != nil {
			return LayerRecord{}, err
		}
	}
	if err := entry.EncodeParams(w, layer); err != nil {
		return LayerRecord{}, err
	}
	klog.V(1).Infof("layer #%d %q: type %s (code %d), bottom %v, top %v, %d bytes of parameters",
		index, layer.Name, entry.Name, entry.Code, layer.Bottom, layer.Top, paramBytes)
	return LayerRecord{
		Index:      index,
		Name:       layer.Name,
		Type:       layer.Type,
		Code:       entry.Code,
		Bottom:     layer.Bottom,
		Top:        layer.Top,
		ParamBytes: paramBytes,
	}, nil
}
