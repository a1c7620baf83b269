package caffe

import (
	"math"
	"slices"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/dynamicpb"
	"k8s.io/klog/v2"
)

// layerDef is a layer of the network definition, still referring to tensors by name.
type layerDef struct {
	name, typ   string
	bottom, top []string

	// param is the caffe.LayerParameter the layer was read from, never a nil message.
	param pmsg
}

var layerParameterDesc = netParameterDesc.Fields().ByName("layer").Message()

func newLayerDef(name, typ string) *layerDef {
	return &layerDef{name: name, typ: typ, param: pmsg{dynamicpb.NewMessage(layerParameterDesc)}}
}

// netDef is the network definition after phase filtering: layers[0] is the input layer.
type netDef struct {
	name        string
	inputShapes [][]int
	layers      []*layerDef
}

// ruleMatches reports whether the state given by the options (phase, level and stages) meets a
// NetStateRule: the phase must match, the level must be within [min_level, max_level], every
// "stage" of the rule must be one of the stages and none of its "not_stage" can be.
func ruleMatches(rule pmsg, opts Options) bool {
	if rule.has("phase") && Phase(rule.enum("phase")) != opts.Phase {
		return false
	}
	if rule.has("min_level") && int64(opts.Level) < rule.i64("min_level") {
		return false
	}
	if rule.has("max_level") && int64(opts.Level) > rule.i64("max_level") {
		return false
	}
	for _, stage := range rule.strs("stage") {
		if !slices.Contains(opts.Stages, stage) {
			return false
		}
	}
	for _, stage := range rule.strs("not_stage") {
		if slices.Contains(opts.Stages, stage) {
			return false
		}
	}
	return true
}

// included reports whether the layer belongs to the network in the state given by the options.
func included(layer pmsg, opts Options) (bool, error) {
	includes, excludes := layer.msgs("include"), layer.msgs("exclude")
	if len(includes) > 0 && len(excludes) > 0 {
		return false, errors.Errorf("layer %q specifies both include and exclude rules", layer.str("name"))
	}
	if len(includes) > 0 {
		for _, rule := range includes {
			if ruleMatches(rule, opts) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, rule := range excludes {
		if ruleMatches(rule, opts) {
			return false, nil
		}
	}
	return true, nil
}

func shapeDims(shape pmsg) []int {
	dims64 := shape.ints("dim")
	dims := make([]int, len(dims64))
	for ii, dim := range dims64 {
		dims[ii] = int(dim)
	}
	return dims
}

// declaredInputs reads the net-level input declaration (input + input_dim or input_shape).
// It returns nil if the net doesn't declare inputs at that level.
func declaredInputs(net pmsg) (*layerDef, [][]int, error) {
	inputs := net.strs("input")
	if len(inputs) == 0 {
		return nil, nil, nil
	}
	var shapes [][]int
	inputDims, inputShapes := net.ints("input_dim"), net.msgs("input_shape")
	switch {
	case len(inputDims) > 0:
		if len(inputDims) != 4*len(inputs) {
			return nil, nil, errors.Errorf("%d inputs declared with %d input_dim values, 4 per input are required",
				len(inputs), len(inputDims))
		}
		for ii := range inputs {
			shape := make([]int, 4)
			for axis := range shape {
				shape[axis] = int(inputDims[4*ii+axis])
			}
			shapes = append(shapes, shape)
		}
	case len(inputShapes) > 0:
		if len(inputShapes) != len(inputs) {
			return nil, nil, errors.Errorf("%d inputs declared with %d input_shape values", len(inputs), len(inputShapes))
		}
		for _, shape := range inputShapes {
			shapes = append(shapes, shapeDims(shape))
		}
	default:
		return nil, nil, errors.Errorf("inputs %q declared without input_dim or input_shape", inputs)
	}
	input := newLayerDef("input", "Input")
	input.top = inputs
	return input, shapes, nil
}

// inputLayerShapes returns the shapes of the tops of an "Input" layer.
func inputLayerShapes(def *layerDef) ([][]int, error) {
	inputParam, _ := def.param.msg("input_param")
	shapeMsgs := inputParam.msgs("shape")
	if len(shapeMsgs) != 1 && len(shapeMsgs) != len(def.top) {
		return nil, errors.Errorf("input layer %q has %d tops and %d shapes", def.name, len(def.top), len(shapeMsgs))
	}
	shapes := make([][]int, len(def.top))
	for ii := range shapes {
		if len(shapeMsgs) == 1 {
			shapes[ii] = shapeDims(shapeMsgs[0])
		} else {
			shapes[ii] = shapeDims(shapeMsgs[ii])
		}
	}
	return shapes, nil
}

// newNetDef filters the layers of a caffe.NetParameter by phase and makes the input layer explicit.
func newNetDef(net pmsg, opts Options) (*netDef, error) {
	if n := len(net.msgs("layers")); n > 0 {
		return nil, errors.Errorf("network uses %d deprecated V1 \"layers\" definitions: upgrade the prototxt to \"layer\"", n)
	}
	def := &netDef{name: net.str("name")}
	input, shapes, err := declaredInputs(net)
	if err != nil {
		return nil, err
	}
	for _, layer := range net.msgs("layer") {
		ok, err := included(layer, opts)
		if err != nil {
			return nil, err
		}
		if !ok {
			klog.V(1).Infof("layer %q (%s) excluded from phase %s, level %d, stages %q",
				layer.str("name"), layer.str("type"), opts.Phase, opts.Level, opts.Stages)
			continue
		}
		def.layers = append(def.layers, &layerDef{
			name:   layer.str("name"),
			typ:    layer.str("type"),
			bottom: layer.strs("bottom"),
			top:    layer.strs("top"),
			param:  layer,
		})
	}

	if input != nil {
		def.layers = append([]*layerDef{input}, def.layers...)
	} else {
		if len(def.layers) == 0 || def.layers[0].typ != "Input" {
			return nil, errors.New("network declares no input: neither \"input\" fields nor a leading \"Input\" layer")
		}
		if shapes, err = inputLayerShapes(def.layers[0]); err != nil {
			return nil, err
		}
	}
	if len(def.layers[0].bottom) > 0 {
		return nil, errors.Errorf("input layer %q has bottoms %q", def.layers[0].name, def.layers[0].bottom)
	}
	if len(opts.InputShape) > 0 {
		if len(shapes) != 1 {
			return nil, errors.Errorf("an input shape can only be set for networks with 1 input, got %d inputs", len(shapes))
		}
		shapes = [][]int{append([]int(nil), opts.InputShape...)}
	}
	def.inputShapes = shapes
	return def, nil
}

// buildModel assigns tensor ids and converts the hyper-parameters of every layer.
//
// Tensors are numbered in creation order. A top with the same name as the bottom at the same
// position is computed in-place and reuses the bottom's id.
func buildModel(def *netDef) (*model.Model, error) {
	m := &model.Model{Name: def.name, InputShapes: def.inputShapes}
	nameToID := make(map[string]int)
	for ii, ld := range def.layers {
		layer := &model.Layer{Name: ld.name, Type: ld.typ}
		for _, name := range ld.bottom {
			id, found := nameToID[name]
			if !found {
				return nil, errors.Errorf("layer %q: unknown bottom blob %q", ld.name, name)
			}
			layer.Bottom = append(layer.Bottom, id)
		}
		for jj, name := range ld.top {
			if jj < len(ld.bottom) && ld.bottom[jj] == name {
				layer.Top = append(layer.Top, layer.Bottom[jj])
				continue
			}
			if _, found := nameToID[name]; found {
				return nil, errors.Errorf("layer %q: top blob %q produced by multiple sources", ld.name, name)
			}
			id := m.AddBlob(name)
			nameToID[name] = id
			layer.Top = append(layer.Top, id)
		}
		if ii > 0 {
			if err := setHyperParams(ld, layer); err != nil {
				return nil, errors.WithMessagef(err, "layer %q", ld.name)
			}
		}
		m.Layers = append(m.Layers, layer)
	}

	for ii, id := range m.Layers[0].Top {
		if ii >= len(def.inputShapes) {
			break
		}
		if shape, err := model.ShapeFromDims(def.inputShapes[ii]...); err == nil {
			m.Blobs[id].Shape = shape
		}
	}
	return m, nil
}

func setHyperParams(def *layerDef, layer *model.Layer) (err error) {
	switch def.typ {
	case "Convolution":
		conv, _ := def.param.msg("convolution_param")
		layer.Convolution, err = convolutionParams(conv)
	case "Pooling":
		pooling, _ := def.param.msg("pooling_param")
		layer.Pooling, err = poolingParams(pooling)
	case "InnerProduct":
		fc, _ := def.param.msg("inner_product_param")
		var numOutput int32
		numOutput, err = toInt32("num_output", fc.u64("num_output"))
		layer.InnerProduct = &model.InnerProductParams{NumOutput: numOutput}
	case "Slice":
		slice, _ := def.param.msg("slice_param")
		layer.Slice, err = sliceParams(slice)
	case "Eltwise":
		eltwise, _ := def.param.msg("eltwise_param")
		layer.Eltwise = &model.EltwiseParams{Operation: model.EltwiseOp(eltwise.enum("operation"))}
	}
	return
}

func toInt32[T int64 | uint64](name string, value T) (int32, error) {
	if value > T(math.MaxInt32) || int64(value) < math.MinInt32 {
		return 0, errors.Errorf("%s=%d out of range", name, value)
	}
	return int32(value), nil
}

// square returns the single value of a square 2D hyper-parameter, given either as a repeated
// field (values) or as the pair name_h/name_w. def is used if neither is set.
func square(p pmsg, name string, values []uint64, def uint64) (int32, error) {
	hName, wName := name+"_h", name+"_w"
	switch {
	case len(values) > 0:
		for _, value := range values[1:] {
			if value != values[0] {
				return 0, errors.Errorf("non-square %s %v not supported", name, values)
			}
		}
		return toInt32(name, values[0])
	case p.has(hName) || p.has(wName):
		h, w := p.u64(hName), p.u64(wName)
		if h != w {
			return 0, errors.Errorf("non-square %s (%s=%d, %s=%d) not supported", name, hName, h, wName, w)
		}
		return toInt32(hName, h)
	}
	return toInt32(name, def)
}

func convolutionParams(conv pmsg) (*model.ConvolutionParams, error) {
	if len(conv.uints("kernel_size")) == 0 && !conv.has("kernel_h") {
		return nil, errors.New("convolution kernel size not specified")
	}
	var params model.ConvolutionParams
	var err error
	if params.KernelSize, err = square(conv, "kernel", conv.uints("kernel_size"), 0); err != nil {
		return nil, err
	}
	if params.Stride, err = square(conv, "stride", conv.uints("stride"), 1); err != nil {
		return nil, err
	}
	if params.Pad, err = square(conv, "pad", conv.uints("pad"), 0); err != nil {
		return nil, err
	}
	if params.NumOutput, err = toInt32("num_output", conv.u64("num_output")); err != nil {
		return nil, err
	}
	return &params, nil
}

// optional returns the value of a non-repeated field as a 1-element list if set, or nil.
func optional(p pmsg, name string) []uint64 {
	if !p.has(name) {
		return nil
	}
	return []uint64{p.u64(name)}
}

func poolingParams(pooling pmsg) (*model.PoolingParams, error) {
	params := model.PoolingParams{Method: model.PoolMethod(pooling.enum("pool"))}
	var err error
	if params.KernelSize, err = square(pooling, "kernel", optional(pooling, "kernel_size"), 0); err != nil {
		return nil, err
	}
	if params.KernelSize == 0 && !pooling.boolean("global_pooling") {
		return nil, errors.New("pooling kernel size not specified")
	}
	if params.Stride, err = square(pooling, "stride", optional(pooling, "stride"), 1); err != nil {
		return nil, err
	}
	if params.Pad, err = square(pooling, "pad", optional(pooling, "pad"), 0); err != nil {
		return nil, err
	}
	return &params, nil
}

// sliceParams takes the deprecated slice_dim if it is set, and axis otherwise. Negative axes
// count from the end of the 4 axes.
func sliceParams(slice pmsg) (*model.SliceParams, error) {
	var axis int64
	if slice.has("slice_dim") {
		axis = int64(slice.u64("slice_dim"))
	} else {
		axis = slice.i64("axis")
		if axis < 0 {
			axis += model.MaxAxes
		}
	}
	if axis < 0 || axis >= model.MaxAxes {
		return nil, errors.Errorf("slice axis %d out of range for 4D blobs", axis)
	}
	return &model.SliceParams{Axis: int32(axis)}, nil
}
