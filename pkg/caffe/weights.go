package caffe

import (
	"fmt"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/gomlx/netbin/pkg/layertypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// blobFromProto converts a caffe.BlobProto. The shape is taken from the N-D "shape" field if
// present, and from the legacy (num, channels, height, width) fields otherwise.
func blobFromProto(name string, proto pmsg) (*model.Blob, error) {
	var shape model.Shape
	var err error
	if shapeMsg, ok := proto.msg("shape"); ok {
		shape, err = model.ShapeFromDims(shapeMsg.ints("dim")...)
	} else {
		shape, err = model.ShapeFromDims(proto.i64("num"), proto.i64("channels"), proto.i64("height"), proto.i64("width"))
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "blob %q", name)
	}

	blob := &model.Blob{Name: name, Shape: shape}
	values := proto.floats("data")
	if len(values) == 0 {
		values = proto.floats("double_data")
	}
	blob.Data = make([]float32, len(values))
	for ii, value := range values {
		blob.Data[ii] = float32(value)
	}
	if err := blob.CheckData(); err != nil {
		return nil, err
	}
	return blob, nil
}

// attachWeights copies the learned blobs of the layers of a caffe.NetParameter (usually read
// from a .caffemodel) to the model's layers with the same name.
//
// Both current ("layer") and legacy ("layers") definitions are read. Layers of the weights
// that are not part of the model are ignored.
func attachWeights(m *model.Model, weights pmsg) error {
	type source struct {
		name  string
		blobs []pmsg
	}
	var sources []source
	for _, layer := range weights.msgs("layer") {
		sources = append(sources, source{layer.str("name"), layer.msgs("blobs")})
	}
	for _, layer := range weights.msgs("layers") {
		sources = append(sources, source{layer.str("name"), layer.msgs("blobs")})
	}

	for _, src := range sources {
		target := m.LayerByName(src.name)
		if target == nil {
			if len(src.blobs) > 0 {
				klog.Warningf("ignoring weights of layer %q: not part of network %q", src.name, m.Name)
			} else {
				klog.V(1).Infof("ignoring source layer %q", src.name)
			}
			continue
		}
		params := make([]*model.Blob, 0, len(src.blobs))
		for ii, blobMsg := range src.blobs {
			blob, err := blobFromProto(fmt.Sprintf("%s/%d", src.name, ii), blobMsg)
			if err != nil {
				return errors.WithMessagef(err, "weights of layer %q", src.name)
			}
			params = append(params, blob)
		}
		target.Params = params
		klog.V(1).Infof("copied %d blobs to layer %s", len(params), target)
	}

	for _, layer := range m.Layers {
		if layertypes.HasWeights(layer.Type) && len(layer.Params) == 0 {
			klog.Warningf("layer %s has no weights", layer)
		}
	}
	return nil
}
