package model

import "fmt"

// Layer is a node of the graph.
//
// Bottom and Top hold tensor ids (positions in Model.Blobs) of its inputs and outputs.
// Params are the learned tensors, in the order the training framework stores them
// (e.g. weights then bias).
//
// Hyper-parameters are kept in the typed optional fields matching the layer Type. A nil
// field means "all defaults", and the accessor methods (ConvolutionParams, ...) fill them in.
type Layer struct {
	Name string
	Type string

	Bottom []int
	Top    []int
	Params []*Blob

	Convolution  *ConvolutionParams
	Pooling      *PoolingParams
	InnerProduct *InnerProductParams
	Slice        *SliceParams
	Eltwise      *EltwiseParams
}

// String implements fmt.Stringer.
func (l *Layer) String() string {
	return fmt.Sprintf("%s(%q)", l.Type, l.Name)
}

// ConvolutionParams of a convolution layer: only square kernels, strides and paddings.
type ConvolutionParams struct {
	KernelSize int32
	Stride     int32
	Pad        int32
	NumOutput  int32
}

// PoolMethod enumerates the pooling kinds, with the values used on the wire.
type PoolMethod int32

const (
	PoolMax        PoolMethod = 0
	PoolAverage    PoolMethod = 1
	PoolStochastic PoolMethod = 2
)

// String implements fmt.Stringer.
func (p PoolMethod) String() string {
	switch p {
	case PoolMax:
		return "MAX"
	case PoolAverage:
		return "AVE"
	case PoolStochastic:
		return "STOCHASTIC"
	default:
		return fmt.Sprintf("PoolMethod(%d)", int32(p))
	}
}

// PoolingParams of a pooling layer.
type PoolingParams struct {
	Method     PoolMethod
	KernelSize int32
	Stride     int32
	Pad        int32
}

// InnerProductParams of a fully-connected layer.
type InnerProductParams struct {
	NumOutput int32
}

// SliceParams of a slice layer.
type SliceParams struct {
	Axis int32
}

// EltwiseOp enumerates the element-wise operations, with the values used on the wire.
type EltwiseOp int32

const (
	EltwiseProduct EltwiseOp = 0
	EltwiseSum     EltwiseOp = 1
	EltwiseMax     EltwiseOp = 2
)

// String implements fmt.Stringer.
func (op EltwiseOp) String() string {
	switch op {
	case EltwiseProduct:
		return "PROD"
	case EltwiseSum:
		return "SUM"
	case EltwiseMax:
		return "MAX"
	default:
		return fmt.Sprintf("EltwiseOp(%d)", int32(op))
	}
}

// EltwiseParams of an element-wise layer.
type EltwiseParams struct {
	Operation EltwiseOp
}

// ConvolutionParams returns the layer's convolution hyper-parameters, or the defaults (stride 1).
func (l *Layer) ConvolutionParams() ConvolutionParams {
	if l.Convolution == nil {
		return ConvolutionParams{Stride: 1}
	}
	return *l.Convolution
}

// PoolingParams returns the layer's pooling hyper-parameters, or the defaults (max pooling, stride 1).
func (l *Layer) PoolingParams() PoolingParams {
	if l.Pooling == nil {
		return PoolingParams{Method: PoolMax, Stride: 1}
	}
	return *l.Pooling
}

// InnerProductParams returns the layer's fully-connected hyper-parameters, or the zero value.
func (l *Layer) InnerProductParams() InnerProductParams {
	if l.InnerProduct == nil {
		return InnerProductParams{}
	}
	return *l.InnerProduct
}

// SliceParams returns the layer's slice hyper-parameters, or the default (axis 1, the channels).
func (l *Layer) SliceParams() SliceParams {
	if l.Slice == nil {
		return SliceParams{Axis: 1}
	}
	return *l.Slice
}

// EltwiseParams returns the layer's element-wise hyper-parameters, or the default (sum).
func (l *Layer) EltwiseParams() EltwiseParams {
	if l.Eltwise == nil {
		return EltwiseParams{Operation: EltwiseSum}
	}
	return *l.Eltwise
}
