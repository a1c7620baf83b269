// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package caffe loads a trained Caffe network, a topology (.prototxt) plus learned weights
// (.caffemodel), into a model.Model ready to be exported.
//
// Loading follows the Caffe net construction that inference runtimes expect:
//
//   - Layers are filtered by phase (include/exclude rules), TEST by default.
//   - The input, declared either with the net level "input" fields or by a leading "Input"
//     layer, becomes model.Model.Layers[0].
//   - A "Split" layer is inserted after every tensor consumed by more than one layer.
//   - Tensors get ids in creation order, and in-place layers reuse their bottom's id.
//   - Weights are copied by layer name.
//
// Only the subset of caffe.proto needed for the export is decoded: unknown fields and
// layer parameters are skipped.
package caffe

import (
	"os"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
	"k8s.io/klog/v2"
)

// ErrLoad is returned (wrapped) for any failure to read, decode or assemble a network.
var ErrLoad = errors.New("failed to load network")

func loadErrorf(err error, format string, args ...any) error {
	return errors.Wrapf(ErrLoad, format+": %v", append(args, err)...)
}

func newNetParameter() pmsg {
	return pmsg{dynamicpb.NewMessage(netParameterDesc)}
}

// ParseTopology builds a model (without weights) from the text of a .prototxt file.
func ParseTopology(data []byte, opts Options) (*model.Model, error) {
	net := newNetParameter()
	if err := (prototext.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, net.m.Interface()); err != nil {
		return nil, loadErrorf(err, "parsing network definition")
	}
	def, err := newNetDef(net, opts)
	if err != nil {
		return nil, loadErrorf(err, "network %q", net.str("name"))
	}
	if opts.InsertSplits {
		if def.layers, err = insertSplits(def.layers); err != nil {
			return nil, loadErrorf(err, "network %q", def.name)
		}
	}
	m, err := buildModel(def)
	if err != nil {
		return nil, loadErrorf(err, "network %q", def.name)
	}
	klog.V(1).Infof("network %q: %d layers, %d tensors, phase %s", m.Name, len(m.Layers), len(m.Blobs), opts.Phase)
	return m, nil
}

// ParseWeights decodes the binary caffe.NetParameter in data (the contents of a .caffemodel
// file) and attaches its learned blobs to the layers of m with the same name.
func ParseWeights(m *model.Model, data []byte) error {
	weights := newNetParameter()
	if err := (proto.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, weights.m.Interface()); err != nil {
		return loadErrorf(err, "decoding weights")
	}
	if err := attachWeights(m, weights); err != nil {
		return loadErrorf(err, "network %q", m.Name)
	}
	if err := m.Validate(); err != nil {
		return loadErrorf(err, "network %q", m.Name)
	}
	return nil
}

// LoadTopology reads a .prototxt file, see ParseTopology.
func LoadTopology(path string, opts Options) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErrorf(err, "reading network definition")
	}
	m, err := ParseTopology(data, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "file %q", path)
	}
	return m, nil
}

// LoadWeights reads a .caffemodel file, see ParseWeights.
func LoadWeights(m *model.Model, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return loadErrorf(err, "reading weights")
	}
	if err := ParseWeights(m, data); err != nil {
		return errors.WithMessagef(err, "file %q", path)
	}
	return nil
}

// Load the network defined in topologyPath with the weights stored in weightsPath.
func Load(topologyPath, weightsPath string, opts Options) (*model.Model, error) {
	m, err := LoadTopology(topologyPath, opts)
	if err != nil {
		return nil, err
	}
	if err := LoadWeights(m, weightsPath); err != nil {
		return nil, err
	}
	return m, nil
}
