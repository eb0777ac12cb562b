package tensor

import "fmt"

const (
	// ImageSize is the edge length every image is resized to.
	ImageSize = 224
	// Channels is the number of colour channels kept after RGB coercion.
	Channels = 3
	// ImageLen is the number of values one image contributes to a batch.
	ImageLen = ImageSize * ImageSize * Channels
)

// Batch is a dense NHWC float32 tensor of preprocessed images.
type Batch struct {
	Shape []int64
	Data  []float32
}

// NewBatch allocates a zeroed batch of n images.
func NewBatch(n int) *Batch {
	return &Batch{
		Shape: []int64{int64(n), ImageSize, ImageSize, Channels},
		Data:  make([]float32, n*ImageLen),
	}
}

// Len returns the batch dimension.
func (b *Batch) Len() int {
	if len(b.Shape) == 0 {
		return 0
	}
	return int(b.Shape[0])
}

// Image returns the slice of Data holding image i.
func (b *Batch) Image(i int) []float32 {
	return b.Data[i*ImageLen : (i+1)*ImageLen]
}

// Validate checks the (N,224,224,3) shape, the data length and the [0,1] range.
func (b *Batch) Validate() error {
	if len(b.Shape) != 4 {
		return fmt.Errorf("expected rank 4 tensor, got shape %v", b.Shape)
	}
	if b.Shape[0] < 1 {
		return fmt.Errorf("empty batch, shape %v", b.Shape)
	}
	if b.Shape[1] != ImageSize || b.Shape[2] != ImageSize || b.Shape[3] != Channels {
		return fmt.Errorf("expected shape (N,%d,%d,%d), got %v", ImageSize, ImageSize, Channels, b.Shape)
	}
	if want := int(b.Shape[0]) * ImageLen; len(b.Data) != want {
		return fmt.Errorf("expected %d values for shape %v, got %d", want, b.Shape, len(b.Data))
	}
	for i, v := range b.Data {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("value %v at index %d outside [0,1]", v, i)
		}
	}
	return nil
}
