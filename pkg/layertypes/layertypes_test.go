package layertypes

import (
	"bytes"
	"testing"

	"github.com/gomlx/netbin/internal/bintest"
	"github.com/gomlx/netbin/pkg/core/binfmt"
	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	want := map[string]Code{
		"Convolution":  4,
		"Pooling":      17,
		"InnerProduct": 14,
		"Softmax":      20,
		"Split":        22,
		"Slice":        33,
		"Eltwise":      25,
		"ReLU":         18,
		"Flatten":      8,
		"Concat":       3,
		"BatchNorm":    139,
		"Scale":        142,
		"PReLU":        131,
	}
	entries := Default().Entries()
	require.Len(t, entries, len(want))
	for ii, entry := range entries {
		assert.Equal(t, want[entry.Name], entry.Code, "type %q", entry.Name)
		assert.Equal(t, entry.Name, entry.Kind.String())
		if ii > 0 {
			assert.Less(t, entries[ii-1].Code, entry.Code)
		}
		code := must.M1(TypeCode(entry.Name))
		assert.Equal(t, entry.Code, code)
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestHasWeights(t *testing.T) {
	var weighted []string
	for _, entry := range Default().Entries() {
		if entry.HasWeights {
			weighted = append(weighted, entry.Name)
		}
		assert.Equal(t, entry.HasWeights, HasWeights(entry.Name))
	}
	assert.ElementsMatch(t, []string{"Convolution", "InnerProduct", "BatchNorm", "Scale", "PReLU"}, weighted)
	assert.False(t, HasWeights("Dropout"))
}

func TestUnsupported(t *testing.T) {
	for _, name := range []string{"SimpleCrop", "Crop", "relu", "", "Input"} {
		_, err := TypeCode(name)
		require.ErrorIs(t, err, ErrUnsupportedLayerType, "type %q", name)
		_, err = ParamEncoder(name)
		require.ErrorIs(t, err, ErrUnsupportedLayerType, "type %q", name)
		_, err = Lookup(name)
		require.ErrorIs(t, err, ErrUnsupportedLayerType, "type %q", name)
	}

	// A restricted registry rejects kinds it wasn't built with, at both lookup sites.
	r := NewRegistry(KindReLU)
	_, err := r.TypeCode("ReLU")
	require.NoError(t, err)
	_, err = r.TypeCode("Pooling")
	require.ErrorIs(t, err, ErrUnsupportedLayerType)
	_, err = r.ParamEncoder("Pooling")
	require.ErrorIs(t, err, ErrUnsupportedLayerType)
}

func blob(t *testing.T, name string, dims ...int) *model.Blob {
	shape := must.M1(model.ShapeFromDims(dims...))
	b := model.NewBlob(name, shape)
	for ii := range b.Data {
		b.Data[ii] = float32(ii) + 0.5
	}
	return b
}

// encode runs the parameter encoder of the layer and returns the bytes after the size field,
// checking that the size field matches.
func encode(t *testing.T, layer *model.Layer) *bintest.Reader {
	var buf bytes.Buffer
	w := binfmt.NewWriter(&buf)
	encoder := must.M1(ParamEncoder(layer.Type))
	require.NoError(t, encoder(w, layer))
	require.NoError(t, w.Flush())

	r := bintest.NewReader(buf.Bytes())
	size := must.M1(r.Int32())
	require.Equal(t, int(size), r.Remaining(), "declared parameter size doesn't match bytes written")
	entry := must.M1(Lookup(layer.Type))
	assert.Equal(t, size, must.M1(entry.ParamSize(layer)))
	return r
}

func TestConvolution(t *testing.T) {
	layer := &model.Layer{
		Name: "conv1", Type: "Convolution",
		Convolution: &model.ConvolutionParams{KernelSize: 3, Stride: 2, Pad: 1, NumOutput: 4},
		Params:      []*model.Blob{blob(t, "w", 4, 2, 3, 3), blob(t, "b", 4)},
	}
	r := encode(t, layer)
	assert.Equal(t, 4*4+(16+72*4)+(16+4*4), r.Remaining())
	assert.Equal(t, []int32{3, 2, 1, 4}, must.M1(r.Int32s(4)))
	assert.Equal(t, []int32{4, 2, 3, 3}, must.M1(r.Int32s(4)))
	assert.Equal(t, layer.Params[0].Data, must.M1(r.Float32s(72)))
	assert.Equal(t, []int32{4, 1, 1, 1}, must.M1(r.Int32s(4)))
	assert.Equal(t, layer.Params[1].Data, must.M1(r.Float32s(4)))
	assert.Equal(t, 0, r.Remaining())

	// Defaults, no weights.
	r = encode(t, &model.Layer{Name: "conv2", Type: "Convolution"})
	assert.Equal(t, []int32{0, 1, 0, 0}, must.M1(r.Int32s(4)))
	assert.Equal(t, 0, r.Remaining())
}

func TestInnerProduct(t *testing.T) {
	layer := &model.Layer{
		Name: "fc", Type: "InnerProduct",
		InnerProduct: &model.InnerProductParams{NumOutput: 3},
		Params:       []*model.Blob{blob(t, "w", 3, 5), blob(t, "b", 3), blob(t, "empty", 0)},
	}
	r := encode(t, layer)
	assert.Equal(t, int32(3), must.M1(r.Int32()))
	assert.Equal(t, []int32{3, 5, 1, 1}, must.M1(r.Int32s(4)))
	assert.Equal(t, layer.Params[0].Data, must.M1(r.Float32s(15)))
	assert.Equal(t, []int32{3, 1, 1, 1}, must.M1(r.Int32s(4)))
	assert.Equal(t, layer.Params[1].Data, must.M1(r.Float32s(3)))
	// Empty blobs still carry their dimensions.
	assert.Equal(t, []int32{0, 1, 1, 1}, must.M1(r.Int32s(4)))
	assert.Equal(t, 0, r.Remaining())
}

func TestFixedSizeTypes(t *testing.T) {
	testCases := []struct {
		layer *model.Layer
		want  []int32
	}{
		{&model.Layer{Type: "Pooling", Pooling: &model.PoolingParams{Method: model.PoolAverage, KernelSize: 3, Stride: 2, Pad: 1}},
			[]int32{1, 3, 2, 1}},
		{&model.Layer{Type: "Pooling"}, []int32{0, 0, 1, 0}},
		{&model.Layer{Type: "Slice", Slice: &model.SliceParams{Axis: 2}}, []int32{2}},
		{&model.Layer{Type: "Slice"}, []int32{1}},
		{&model.Layer{Type: "Eltwise", Eltwise: &model.EltwiseParams{Operation: model.EltwiseMax}}, []int32{2}},
		{&model.Layer{Type: "Eltwise", Eltwise: &model.EltwiseParams{Operation: model.EltwiseProduct}}, []int32{0}},
		{&model.Layer{Type: "Eltwise"}, []int32{1}},
		{&model.Layer{Type: "ReLU"}, []int32{}},
		{&model.Layer{Type: "Softmax"}, []int32{}},
		{&model.Layer{Type: "Split"}, []int32{}},
		{&model.Layer{Type: "Concat"}, []int32{}},
		{&model.Layer{Type: "Flatten"}, []int32{}},
	}
	for _, tc := range testCases {
		t.Run(tc.layer.Type, func(t *testing.T) {
			r := encode(t, tc.layer)
			assert.Equal(t, tc.want, must.M1(r.Int32s(r.Remaining()/4)))
		})
	}
}

func TestRawFloatTypes(t *testing.T) {
	for _, typeName := range []string{"BatchNorm", "Scale", "PReLU"} {
		t.Run(typeName, func(t *testing.T) {
			layer := &model.Layer{
				Name: "norm", Type: typeName,
				Params: []*model.Blob{blob(t, "mean", 8), blob(t, "variance", 8), blob(t, "factor", 1)},
			}
			r := encode(t, layer)
			assert.Equal(t, 4+17*4, r.Remaining())
			assert.Equal(t, int32(0), must.M1(r.Int32()), "reserved slot")
			assert.Equal(t, layer.Params[0].Data, must.M1(r.Float32s(8)))
			assert.Equal(t, layer.Params[1].Data, must.M1(r.Float32s(8)))
			assert.Equal(t, layer.Params[2].Data, must.M1(r.Float32s(1)))

			// No weights: only the reserved slot.
			r = encode(t, &model.Layer{Name: "empty", Type: typeName})
			assert.Equal(t, 4, r.Remaining())
		})
	}
}

func TestInvalidBlob(t *testing.T) {
	bad := blob(t, "w", 2, 2)
	bad.Data = bad.Data[:3]
	for _, typeName := range []string{"Convolution", "InnerProduct", "BatchNorm"} {
		layer := &model.Layer{Name: "bad", Type: typeName, Params: []*model.Blob{bad}}
		var buf bytes.Buffer
		w := binfmt.NewWriter(&buf)
		encoder := must.M1(ParamEncoder(typeName))
		err := encoder(w, layer)
		require.ErrorIs(t, err, model.ErrInvalidBlob)
		assert.Equal(t, int64(0), w.Count(), "nothing should be written for an invalid layer")
	}
}
