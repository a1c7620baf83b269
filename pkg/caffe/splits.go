package caffe

import (
	"fmt"

	"github.com/pkg/errors"
)

// topRef identifies the k-th top of the i-th layer.
type topRef struct {
	layer, top int
}

func splitLayerName(layerName, blobName string, topIdx int) string {
	return fmt.Sprintf("%s_%s_%d_split", blobName, layerName, topIdx)
}

func splitBlobName(layerName, blobName string, topIdx, splitIdx int) string {
	return fmt.Sprintf("%s_%s_%d_split_%d", blobName, layerName, topIdx, splitIdx)
}

// insertSplits returns the layers with a "Split" layer added after every top consumed by more
// than one bottom: each consumer then reads its own copy, named <blob>_<layer>_<top>_split_<k>.
//
// Bottoms are resolved before the tops of the same layer, so in-place layers are consumers of
// the previous producer of their blob.
func insertSplits(layers []*layerDef) ([]*layerDef, error) {
	lastProducer := make(map[string]topRef)
	source := make([][]topRef, len(layers))
	consumers := make(map[topRef]int)
	for ii, ld := range layers {
		source[ii] = make([]topRef, len(ld.bottom))
		for jj, name := range ld.bottom {
			ref, found := lastProducer[name]
			if !found {
				return nil, errors.Errorf("layer %q: unknown bottom blob %q", ld.name, name)
			}
			source[ii][jj] = ref
			consumers[ref]++
		}
		for jj, name := range ld.top {
			lastProducer[name] = topRef{ii, jj}
		}
	}

	nextSplit := make(map[topRef]int)
	result := make([]*layerDef, 0, len(layers))
	for ii, ld := range layers {
		layer := *ld
		layer.bottom = append([]string(nil), ld.bottom...)
		for jj, name := range ld.bottom {
			ref := source[ii][jj]
			if consumers[ref] > 1 {
				layer.bottom[jj] = splitBlobName(layers[ref.layer].name, name, ref.top, nextSplit[ref])
				nextSplit[ref]++
			}
		}
		result = append(result, &layer)
		for jj, name := range ld.top {
			count := consumers[topRef{ii, jj}]
			if count <= 1 {
				continue
			}
			split := newLayerDef(splitLayerName(ld.name, name, jj), "Split")
			split.bottom = []string{name}
			for kk := range count {
				split.top = append(split.top, splitBlobName(ld.name, name, jj, kk))
			}
			result = append(result, split)
		}
	}
	return result, nil
}
