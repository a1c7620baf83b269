package layertypes

import (
	"github.com/gomlx/netbin/pkg/core/binfmt"
	"github.com/gomlx/netbin/pkg/core/model"
)

const (
	int32Size   = 4
	float32Size = 4

	// blobHeaderSize is the size of the 4 dimensions written before each weight blob.
	blobHeaderSize = model.MaxAxes * int32Size
)

func fixedSize(size int64) func(*model.Layer) (int64, error) {
	return func(*model.Layer) (int64, error) { return size, nil }
}

func noFields(*binfmt.Writer, *model.Layer) error { return nil }

// blobsSize is the size of the layer's weight blobs, each optionally prefixed by its 4 dimensions.
// Blobs whose data doesn't match their shape are rejected here, before anything is written.
func blobsSize(layer *model.Layer, withDims bool) (int64, error) {
	var size int64
	for _, blob := range layer.Params {
		if err := blob.CheckData(); err != nil {
			return 0, err
		}
		if withDims {
			size += blobHeaderSize
		}
		size += int64(blob.Count()) * float32Size
	}
	return size, nil
}

// writeBlobs writes the weight blobs; empty blobs still get their dimensions written.
func writeBlobs(w *binfmt.Writer, layer *model.Layer, withDims bool) error {
	for _, blob := range layer.Params {
		if withDims {
			dims := blob.Shape.Dims()
			if err := w.WriteInts(dims[:]); err != nil {
				return err
			}
		}
		if err := w.WriteFloat32s(blob.Data); err != nil {
			return err
		}
	}
	return nil
}

func convolutionSize(layer *model.Layer) (int64, error) {
	size, err := blobsSize(layer, true)
	return 4*int32Size + size, err
}

func convolutionFields(w *binfmt.Writer, layer *model.Layer) error {
	p := layer.ConvolutionParams()
	if err := w.WriteInt32s([]int32{p.KernelSize, p.Stride, p.Pad, p.NumOutput}); err != nil {
		return err
	}
	return writeBlobs(w, layer, true)
}

func poolingFields(w *binfmt.Writer, layer *model.Layer) error {
	p := layer.PoolingParams()
	return w.WriteInt32s([]int32{int32(p.Method), p.KernelSize, p.Stride, p.Pad})
}

func innerProductSize(layer *model.Layer) (int64, error) {
	size, err := blobsSize(layer, true)
	return int32Size + size, err
}

func innerProductFields(w *binfmt.Writer, layer *model.Layer) error {
	if err := w.WriteInt32(layer.InnerProductParams().NumOutput); err != nil {
		return err
	}
	return writeBlobs(w, layer, true)
}

func sliceFields(w *binfmt.Writer, layer *model.Layer) error {
	return w.WriteInt32(layer.SliceParams().Axis)
}

func eltwiseFields(w *binfmt.Writer, layer *model.Layer) error {
	return w.WriteInt32(int32(layer.EltwiseParams().Operation))
}

// reservedSlot is written at the start of BatchNorm, Scale and PReLU blocks. The runtime skips it.
const reservedSlot int32 = 0

func rawFloatsSize(layer *model.Layer) (int64, error) {
	size, err := blobsSize(layer, false)
	return int32Size + size, err
}

func rawFloatsFields(w *binfmt.Writer, layer *model.Layer) error {
	if err := w.WriteInt32(reservedSlot); err != nil {
		return err
	}
	return writeBlobs(w, layer, false)
}
