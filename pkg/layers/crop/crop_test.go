package crop

import (
	"testing"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/gomlx/netbin/pkg/layertypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iotaBlob(name string, shape model.Shape) *model.Blob {
	b := model.NewBlob(name, shape)
	for ii := range b.Data {
		b.Data[ii] = float32(ii + 1)
	}
	return b
}

func TestOffsets(t *testing.T) {
	in := model.Shape{Num: 2, Channels: 3, Height: 10, Width: 10}
	c := must.M1(New(in, 6, 6))
	assert.Equal(t, 2, c.OffsetH)
	assert.Equal(t, 2, c.OffsetW)
	assert.Equal(t, model.Shape{Num: 2, Channels: 3, Height: 6, Width: 6}, c.Output)

	// Odd differences round half away from zero.
	c = must.M1(New(model.Shape{Num: 1, Channels: 1, Height: 7, Width: 4}, 4, 3))
	assert.Equal(t, 2, c.OffsetH)
	assert.Equal(t, 1, c.OffsetW)

	c = must.M1(New(in, 10, 10))
	assert.Equal(t, 0, c.OffsetH)

	_, err := New(in, 11, 5)
	require.Error(t, err)
	_, err = New(in, 0, 5)
	require.Error(t, err)
}

func TestForward(t *testing.T) {
	in := model.Shape{Num: 2, Channels: 3, Height: 10, Width: 10}
	c := must.M1(New(in, 6, 6))
	bottom := iotaBlob("x", in)
	top := must.M1(c.Forward(bottom))
	require.Equal(t, c.Output, top.Shape)
	for n := 0; n < 2; n++ {
		for ch := 0; ch < 3; ch++ {
			for h := 0; h < 6; h++ {
				for w := 0; w < 6; w++ {
					assert.Equal(t, bottom.Data[in.Offset(n, ch, h+2, w+2)], top.Data[top.Shape.Offset(n, ch, h, w)])
				}
			}
		}
	}

	_, err := c.Forward(iotaBlob("y", model.Shape{Num: 1, Channels: 3, Height: 10, Width: 10}))
	require.Error(t, err)
}

func TestBackward(t *testing.T) {
	in := model.Shape{Num: 2, Channels: 3, Height: 10, Width: 10}
	c := must.M1(New(in, 6, 6))
	topDiff := iotaBlob("dy", c.Output)
	bottomDiff := must.M1(c.Backward(topDiff))
	require.Equal(t, in, bottomDiff.Shape)
	for n := 0; n < 2; n++ {
		for ch := 0; ch < 3; ch++ {
			for h := 0; h < 10; h++ {
				for w := 0; w < 10; w++ {
					got := bottomDiff.Data[in.Offset(n, ch, h, w)]
					if h >= 2 && h < 8 && w >= 2 && w < 8 {
						assert.Equal(t, topDiff.Data[c.Output.Offset(n, ch, h-2, w-2)], got)
					} else {
						assert.Zero(t, got, "gradient outside the window at (%d, %d, %d, %d)", n, ch, h, w)
					}
				}
			}
		}
	}

	_, err := c.Backward(iotaBlob("dy", in))
	require.Error(t, err)
}

func TestNotExportable(t *testing.T) {
	_, err := layertypes.TypeCode("SimpleCrop")
	require.ErrorIs(t, err, layertypes.ErrUnsupportedLayerType)
}
