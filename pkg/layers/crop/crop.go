// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package crop implements a centered 2D crop of 4D blobs (num, channels, height, width),
// forward and backward.
//
// The crop keeps the num and channels axes, and takes an outH x outW window of the spatial
// axes starting at offsets round((inH-outH)/2), round((inW-outW)/2).
//
// The layer type ("SimpleCrop") has no entry in the exporter's registry: a model using it
// can be loaded but not exported.
package crop

import (
	"math"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/pkg/errors"
)

// Crop holds the geometry of one crop.
type Crop struct {
	Input, Output    model.Shape
	OffsetH, OffsetW int
}

// New computes the crop of blobs with the given input shape to a height x width window.
func New(input model.Shape, height, width int) (*Crop, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("crop target %dx%d must be positive", height, width)
	}
	if height > input.Height || width > input.Width {
		return nil, errors.Errorf("crop target %dx%d larger than input %s", height, width, input)
	}
	c := &Crop{
		Input:   input,
		Output:  model.Shape{Num: input.Num, Channels: input.Channels, Height: height, Width: width},
		OffsetH: int(math.Round(float64(input.Height-height) / 2)),
		OffsetW: int(math.Round(float64(input.Width-width) / 2)),
	}
	return c, nil
}

// Forward returns the cropped blob.
func (c *Crop) Forward(bottom *model.Blob) (*model.Blob, error) {
	if bottom.Shape != c.Input {
		return nil, errors.Errorf("crop forward: blob %q has shape %s, expected %s", bottom.Name, bottom.Shape, c.Input)
	}
	if err := bottom.CheckData(); err != nil {
		return nil, err
	}
	top := model.NewBlob(bottom.Name+"_crop", c.Output)
	c.eachRow(func(src, dst int) {
		copy(top.Data[dst:dst+c.Output.Width], bottom.Data[src:src+c.Output.Width])
	})
	return top, nil
}

// Backward returns the gradient with respect to the input: zero everywhere except in the crop
// window, where it equals topDiff.
func (c *Crop) Backward(topDiff *model.Blob) (*model.Blob, error) {
	if topDiff.Shape != c.Output {
		return nil, errors.Errorf("crop backward: gradient %q has shape %s, expected %s", topDiff.Name, topDiff.Shape, c.Output)
	}
	if err := topDiff.CheckData(); err != nil {
		return nil, err
	}
	bottomDiff := model.NewBlob(topDiff.Name+"_grad", c.Input)
	c.eachRow(func(src, dst int) {
		copy(bottomDiff.Data[src:src+c.Output.Width], topDiff.Data[dst:dst+c.Output.Width])
	})
	return bottomDiff, nil
}

// eachRow calls fn with the flat offsets of the start of every cropped row, in the input (src)
// and in the output (dst).
func (c *Crop) eachRow(fn func(src, dst int)) {
	for n := 0; n < c.Output.Num; n++ {
		for ch := 0; ch < c.Output.Channels; ch++ {
			for h := 0; h < c.Output.Height; h++ {
				fn(c.Input.Offset(n, ch, c.OffsetH+h, c.OffsetW), c.Output.Offset(n, ch, h, 0))
			}
		}
	}
}
