// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MaxAxes is the largest rank a blob can have: (num, channels, height, width).
const MaxAxes = 4

// Shape of a 4D blob, in the (num, channels, height, width) layout of the inference runtime.
//
// Blobs of lower rank use the "legacy" view: missing trailing axes have dimension 1, so a
// fully-connected weight of shape [out, in] is (out, in, 1, 1) and a bias of shape [out]
// is (out, 1, 1, 1).
type Shape struct {
	Num, Channels, Height, Width int
}

// ShapeFromDims converts a N-dimensional shape (N <= 4) to its 4D legacy view.
// It returns an error for negative dimensions or more than 4 axes.
func ShapeFromDims[T int | int32 | int64](dims ...T) (Shape, error) {
	if len(dims) > MaxAxes {
		return Shape{}, errors.Errorf("blob with %d axes %v cannot be represented in 4D (num, channels, height, width)",
			len(dims), dims)
	}
	full := [MaxAxes]int{1, 1, 1, 1}
	for axis, dim := range dims {
		if dim < 0 {
			return Shape{}, errors.Errorf("negative dimension %d at axis %d of shape %v", dim, axis, dims)
		}
		full[axis] = int(dim)
	}
	return Shape{Num: full[0], Channels: full[1], Height: full[2], Width: full[3]}, nil
}

// Dims returns the 4 dimensions as a fixed array, in (num, channels, height, width) order.
func (s Shape) Dims() [MaxAxes]int {
	return [MaxAxes]int{s.Num, s.Channels, s.Height, s.Width}
}

// Count returns the number of elements: the product of the 4 dimensions.
func (s Shape) Count() int {
	return s.Num * s.Channels * s.Height * s.Width
}

// Offset returns the flat row-major position of the element (n, c, h, w).
//
// It panics if any of the indices is out of range.
func (s Shape) Offset(n, c, h, w int) int {
	if n < 0 || n >= s.Num || c < 0 || c >= s.Channels || h < 0 || h >= s.Height || w < 0 || w >= s.Width {
		exceptions.Panicf("index (%d, %d, %d, %d) out of range for shape %s", n, c, h, w, s)
	}
	return ((n*s.Channels+c)*s.Height+h)*s.Width + w
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.Num, s.Channels, s.Height, s.Width)
}
