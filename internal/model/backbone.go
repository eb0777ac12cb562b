package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Backbone is the frozen feature extractor. Features returns one pooled
// feature row per image in the batch.
type Backbone interface {
	Features(batch *tensor.Batch) (*mat.Dense, error)
}

// globalAveragePool reduces a backbone output to (batch, features).
// Rank 2 outputs are assumed to be pooled already.
func globalAveragePool(data []float32, shape []int64, layout string) (*mat.Dense, error) {
	total := int64(1)
	for _, d := range shape {
		total *= d
	}
	if int64(len(data)) != total {
		return nil, fmt.Errorf("backbone output has %d values for shape %v", len(data), shape)
	}

	switch len(shape) {
	case 2:
		n, f := int(shape[0]), int(shape[1])
		out := mat.NewDense(n, f, nil)
		raw := out.RawMatrix().Data
		for i, v := range data {
			raw[i] = float64(v)
		}
		return out, nil
	case 4:
	default:
		return nil, fmt.Errorf("unsupported backbone output rank %d (shape %v)", len(shape), shape)
	}

	n := int(shape[0])
	var h, w, c int
	switch layout {
	case LayoutNHWC, "":
		h, w, c = int(shape[1]), int(shape[2]), int(shape[3])
	case LayoutNCHW:
		c, h, w = int(shape[1]), int(shape[2]), int(shape[3])
	default:
		return nil, fmt.Errorf("unknown backbone layout %q", layout)
	}

	out := mat.NewDense(n, c, nil)
	spatial := float64(h * w)
	for b := 0; b < n; b++ {
		row := out.RawRowView(b)
		img := data[b*h*w*c : (b+1)*h*w*c]
		if layout == LayoutNCHW {
			for ch := 0; ch < c; ch++ {
				var sum float64
				for _, v := range img[ch*h*w : (ch+1)*h*w] {
					sum += float64(v)
				}
				row[ch] = sum / spatial
			}
			continue
		}
		for p := 0; p < h*w; p++ {
			for ch, v := range img[p*c : (p+1)*c] {
				row[ch] += float64(v)
			}
		}
		for ch := range row {
			row[ch] /= spatial
		}
	}
	return out, nil
}
