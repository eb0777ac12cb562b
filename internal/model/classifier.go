package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

// InferenceError reports a malformed input batch or a failing forward pass.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Classifier is the frozen backbone plus the trained head. It is built once
// and never mutated, so one instance serves all requests.
type Classifier struct {
	Metadata Metadata
	backbone Backbone
	head     *Head
}

// NewClassifier checks that backbone, head and metadata agree.
func NewClassifier(meta Metadata, backbone Backbone, head *Head) (*Classifier, error) {
	if backbone == nil || head == nil {
		return nil, errors.New("classifier needs a backbone and a head")
	}
	if err := head.validate(); err != nil {
		return nil, fmt.Errorf("invalid head: %w", err)
	}
	if meta.Backbone.FeatureSize != 0 && meta.Backbone.FeatureSize != head.Features() {
		return nil, fmt.Errorf("head expects %d features, backbone produces %d", head.Features(), meta.Backbone.FeatureSize)
	}
	if err := checkInputShape(meta.InputShape); err != nil {
		return nil, err
	}
	if meta.ImageSize != 0 && meta.ImageSize != tensor.ImageSize {
		return nil, fmt.Errorf("model expects %dx%d images, preprocessing produces %dx%d",
			meta.ImageSize, meta.ImageSize, tensor.ImageSize, tensor.ImageSize)
	}
	return &Classifier{Metadata: meta, backbone: backbone, head: head}, nil
}

// checkInputShape accepts an empty shape (older manifests) or one whose
// per-image dimensions match what preprocessing produces.
func checkInputShape(shape []int64) error {
	if len(shape) == 0 {
		return nil
	}
	want := []int64{tensor.ImageSize, tensor.ImageSize, tensor.Channels}
	if len(shape) != 4 || shape[0] == 0 || shape[0] < -1 {
		return fmt.Errorf("model input shape %v is not (batch, %d, %d, %d)", shape, want[0], want[1], want[2])
	}
	for i, d := range want {
		if shape[i+1] != d {
			return fmt.Errorf("model input shape %v is not (batch, %d, %d, %d)", shape, want[0], want[1], want[2])
		}
	}
	return nil
}

// Predict returns one row per image holding the malignant probability.
// A batch with the wrong shape is rejected, never reshaped.
func (c *Classifier) Predict(ctx context.Context, batch *tensor.Batch) ([][]float32, error) {
	if batch == nil {
		return nil, &InferenceError{Err: errors.New("nil batch")}
	}
	if err := batch.Validate(); err != nil {
		return nil, &InferenceError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features, err := c.backbone.Features(batch)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	n, f := features.Dims()
	if n != batch.Len() || f != c.head.Features() {
		return nil, &InferenceError{Err: fmt.Errorf("backbone returned %dx%d features, want %dx%d", n, f, batch.Len(), c.head.Features())}
	}

	probs := c.head.Forward(features)
	out := make([][]float32, len(probs))
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, &InferenceError{Err: fmt.Errorf("image %d: probability %v is not in [0,1]", i, p)}
		}
		out[i] = []float32{float32(p)}
	}
	return out, nil
}

// Close releases the backbone session if it holds one.
func (c *Classifier) Close() error {
	if closer, ok := c.backbone.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type LoadOptions struct {
	// ONNXRuntimeLib is the path of the onnxruntime shared library.
	ONNXRuntimeLib string
}

// Load reads a bundle and builds the classifier around an ONNX backbone.
func Load(path string, opts LoadOptions) (*Classifier, error) {
	bundle, err := OpenBundle(path)
	if err != nil {
		return nil, err
	}
	if err := InitRuntime(opts.ONNXRuntimeLib); err != nil {
		return nil, err
	}
	backbone, err := NewONNXBackbone(bundle.Backbone, bundle.Metadata.Backbone)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(bundle.Metadata, backbone, bundle.Head)
	if err != nil {
		backbone.Close()
		return nil, err
	}
	return c, nil
}
