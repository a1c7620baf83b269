// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layertypes is the closed table of layer kinds the inference runtime understands.
//
// Each Kind carries the numeric type code the runtime expects and the encoder of the layer's
// parameter block. Both the type code and the encoder are resolved through the same lookup,
// so a layer type is either fully supported or rejected with ErrUnsupportedLayerType.
//
// Every parameter block starts with its byte-size (int32), followed by the type specific
// fields:
//
//	Convolution    kernel, stride, pad, num_output; per weight blob: 4 dims + floats.
//	Pooling        pool method, kernel, stride, pad.
//	InnerProduct   num_output; per weight blob: 4 dims + floats.
//	Slice          slice axis.
//	Eltwise        operation.
//	BatchNorm, Scale, PReLU
//	               reserved int32 (0); per weight blob: floats only.
//	ReLU, Softmax, Split, Concat, Flatten
//	               nothing.
package layertypes

import (
	"fmt"
	"sort"

	"github.com/gomlx/netbin/pkg/core/binfmt"
	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedLayerType is returned when a layer type has no entry in the registry.
	ErrUnsupportedLayerType = errors.New("unsupported layer type")

	// ErrParamSizeMismatch is returned if an encoder wrote a different number of bytes than it declared.
	ErrParamSizeMismatch = errors.New("parameter block size mismatch")
)

// Code is the numeric layer type understood by the inference runtime.
type Code int32

// Kind enumerates the supported layer kinds.
type Kind int

const (
	KindConvolution Kind = iota
	KindPooling
	KindInnerProduct
	KindReLU
	KindSoftmax
	KindSplit
	KindConcat
	KindFlatten
	KindSlice
	KindEltwise
	KindBatchNorm
	KindScale
	KindPReLU
)

// String returns the layer type name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(table) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return table[k].Name
}

// Encoder writes a layer's parameter block: its byte-size followed by its fields.
type Encoder func(w *binfmt.Writer, layer *model.Layer) error

// Entry describes one supported layer kind.
type Entry struct {
	Kind Kind

	// Name is the layer type name, as given by the training framework.
	Name string

	// Code is the type code written to the artifact.
	Code Code

	// HasWeights is set for the kinds whose parameter block carries learned blobs.
	HasWeights bool

	size   func(layer *model.Layer) (int64, error)
	fields func(w *binfmt.Writer, layer *model.Layer) error
}

// table is indexed by Kind. Codes are fixed by the runtime: the classic layers take their
// values from the Caffe V1 layer type enumeration, the newer ones (BatchNorm, Scale, PReLU)
// the field numbers of their parameters.
var table = []*Entry{
	KindConvolution:  {Name: "Convolution", Code: 4, HasWeights: true, size: convolutionSize, fields: convolutionFields},
	KindPooling:      {Name: "Pooling", Code: 17, size: fixedSize(16), fields: poolingFields},
	KindInnerProduct: {Name: "InnerProduct", Code: 14, HasWeights: true, size: innerProductSize, fields: innerProductFields},
	KindReLU:         {Name: "ReLU", Code: 18, size: fixedSize(0), fields: noFields},
	KindSoftmax:      {Name: "Softmax", Code: 20, size: fixedSize(0), fields: noFields},
	KindSplit:        {Name: "Split", Code: 22, size: fixedSize(0), fields: noFields},
	KindConcat:       {Name: "Concat", Code: 3, size: fixedSize(0), fields: noFields},
	KindFlatten:      {Name: "Flatten", Code: 8, size: fixedSize(0), fields: noFields},
	KindSlice:        {Name: "Slice", Code: 33, size: fixedSize(4), fields: sliceFields},
	KindEltwise:      {Name: "Eltwise", Code: 25, size: fixedSize(4), fields: eltwiseFields},
	KindBatchNorm:    {Name: "BatchNorm", Code: 139, HasWeights: true, size: rawFloatsSize, fields: rawFloatsFields},
	KindScale:        {Name: "Scale", Code: 142, HasWeights: true, size: rawFloatsSize, fields: rawFloatsFields},
	KindPReLU:        {Name: "PReLU", Code: 131, HasWeights: true, size: rawFloatsSize, fields: rawFloatsFields},
}

func init() {
	for kind, entry := range table {
		entry.Kind = Kind(kind)
	}
}

// Registry maps layer type names to entries.
type Registry struct {
	byName map[string]*Entry
}

// NewRegistry creates a registry with the given kinds. With no kinds, all supported kinds are included.
func NewRegistry(kinds ...Kind) *Registry {
	if len(kinds) == 0 {
		for kind := range table {
			kinds = append(kinds, Kind(kind))
		}
	}
	r := &Registry{byName: make(map[string]*Entry, len(kinds))}
	for _, kind := range kinds {
		entry := table[kind]
		r.byName[entry.Name] = entry
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the registry with every supported kind.
func Default() *Registry {
	return defaultRegistry
}

// Lookup returns the entry for the layer type name, or ErrUnsupportedLayerType.
func (r *Registry) Lookup(typeName string) (*Entry, error) {
	entry, found := r.byName[typeName]
	if !found {
		return nil, errors.Wrapf(ErrUnsupportedLayerType, "layer type %q", typeName)
	}
	return entry, nil
}

// TypeCode returns the type code for the layer type name, or ErrUnsupportedLayerType.
func (r *Registry) TypeCode(typeName string) (Code, error) {
	entry, err := r.Lookup(typeName)
	if err != nil {
		return 0, err
	}
	return entry.Code, nil
}

// ParamEncoder returns the parameter block encoder for the layer type name, or ErrUnsupportedLayerType.
func (r *Registry) ParamEncoder(typeName string) (Encoder, error) {
	entry, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return entry.EncodeParams, nil
}

// Entries returns the registered entries sorted by type code.
func (r *Registry) Entries() []*Entry {
	entries := make([]*Entry, 0, len(r.byName))
	for _, entry := range r.byName {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries
}

// Lookup in the default registry.
func Lookup(typeName string) (*Entry, error) { return defaultRegistry.Lookup(typeName) }

// TypeCode in the default registry.
func TypeCode(typeName string) (Code, error) { return defaultRegistry.TypeCode(typeName) }

// ParamEncoder in the default registry.
func ParamEncoder(typeName string) (Encoder, error) { return defaultRegistry.ParamEncoder(typeName) }

// HasWeights reports whether the layer type name is a supported kind with learned blobs.
func HasWeights(typeName string) bool {
	entry, err := defaultRegistry.Lookup(typeName)
	return err == nil && entry.HasWeights
}

// ParamSize returns the byte-size declared in the layer's parameter block (the size field itself excluded).
func (e *Entry) ParamSize(layer *model.Layer) (int32, error) {
	size, err := e.size(layer)
	if err != nil {
		return 0, errors.WithMessagef(err, "%s layer %q", e.Name, layer.Name)
	}
	if size > maxInt32 {
		return 0, errors.Errorf("%s layer %q: parameter block of %d bytes doesn't fit the int32 size field",
			e.Name, layer.Name, size)
	}
	return int32(size), nil
}

const maxInt32 = 1<<31 - 1

// EncodeParams writes the layer's parameter block: the byte-size followed by the fields.
//
// It checks that exactly the declared number of bytes was written.
func (e *Entry) EncodeParams(w *binfmt.Writer, layer *model.Layer) error {
	size, err := e.ParamSize(layer)
	if err != nil {
		return err
	}
	if err := w.WriteInt32(size); err != nil {
		return err
	}
	start := w.Count()
	if err := e.fields(w, layer); err != nil {
		return errors.WithMessagef(err, "%s layer %q", e.Name, layer.Name)
	}
	if written := w.Count() - start; written != int64(size) {
		return errors.Wrapf(ErrParamSizeMismatch, "%s layer %q declared %d bytes of parameters but wrote %d",
			e.Name, layer.Name, size, written)
	}
	return nil
}
