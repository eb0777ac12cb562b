package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchShape(t *testing.T) {
	b := NewBatch(2)
	assert.Equal(t, []int64{2, 224, 224, 3}, b.Shape)
	assert.Len(t, b.Data, 2*ImageLen)
	assert.Equal(t, 2, b.Len())
	require.NoError(t, b.Validate())

	b.Image(1)[0] = 0.5
	assert.Equal(t, float32(0.5), b.Data[ImageLen])
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]*Batch{
		"rank":   {Shape: []int64{224, 224, 3}, Data: make([]float32, ImageLen)},
		"empty":  {Shape: []int64{0, 224, 224, 3}},
		"dims":   {Shape: []int64{1, 3, 224, 224}, Data: make([]float32, ImageLen)},
		"length": {Shape: []int64{1, 224, 224, 3}, Data: make([]float32, 10)},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, b.Validate())
		})
	}

	b := NewBatch(1)
	b.Data[7] = 1.5
	assert.Error(t, b.Validate())
	b.Data[7] = float32(math.NaN())
	assert.Error(t, b.Validate())
}
