package model

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

// channelMeans pools each image to its mean R, G and B.
type channelMeans struct{ calls int }

func (b *channelMeans) Features(batch *tensor.Batch) (*mat.Dense, error) {
	b.calls++
	out := mat.NewDense(batch.Len(), 3, nil)
	for i := 0; i < batch.Len(); i++ {
		img := batch.Image(i)
		for p := 0; p < len(img); p += 3 {
			for c := 0; c < 3; c++ {
				out.Set(i, c, out.At(i, c)+float64(img[p+c]))
			}
		}
		for c := 0; c < 3; c++ {
			out.Set(i, c, out.At(i, c)/float64(len(img)/3))
		}
	}
	return out, nil
}

type failingBackbone struct{}

func (failingBackbone) Features(*tensor.Batch) (*mat.Dense, error) {
	return nil, errors.New("session exploded")
}

func testMetadata() Metadata {
	return Metadata{
		Format:     FormatV1,
		InputShape: []int64{-1, 224, 224, 3},
		ImageSize:  224,
		Classes:    []string{"benign", "malignant"},
		Backbone:   BackboneSpec{InputName: "input", OutputName: "features", Layout: LayoutNHWC, FeatureSize: 3},
		Head:       HeadSpec{HiddenUnits: 4, Activation: "gelu", Output: "sigmoid"},
	}
}

func filledBatch(n int, v float32) *tensor.Batch {
	b := tensor.NewBatch(n)
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

func TestPredict(t *testing.T) {
	c, err := NewClassifier(testMetadata(), &channelMeans{}, NewHead(3, 4, rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	out, err := c.Predict(context.Background(), filledBatch(2, 0.25))
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, row := range out {
		require.Len(t, row, 1)
		assert.True(t, row[0] > 0 && row[0] < 1)
	}
	assert.Equal(t, out[0], out[1])
}

func TestPredictBitIdenticalAcrossCalls(t *testing.T) {
	c, err := NewClassifier(testMetadata(), &channelMeans{}, NewHead(3, 4, rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	batch := filledBatch(1, 0.6)
	first, err := c.Predict(context.Background(), batch)
	require.NoError(t, err)
	second, err := c.Predict(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPredictConcurrent(t *testing.T) {
	head := NewHead(3, 4, rand.New(rand.NewSource(7)))
	want, err := NewClassifier(testMetadata(), &channelMeans{}, head)
	require.NoError(t, err)
	expected, err := want.Predict(context.Background(), filledBatch(1, 0.4))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// each goroutine owns its fake backbone; the head is shared
			c, err := NewClassifier(testMetadata(), &channelMeans{}, head)
			if !assert.NoError(t, err) {
				return
			}
			got, err := c.Predict(context.Background(), filledBatch(1, 0.4))
			assert.NoError(t, err)
			assert.Equal(t, expected, got)
		}()
	}
	wg.Wait()
}

func TestPredictRejectsMalformedBatch(t *testing.T) {
	backbone := &channelMeans{}
	c, err := NewClassifier(testMetadata(), backbone, NewHead(3, 4, rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	bad := []*tensor.Batch{
		nil,
		{Shape: []int64{1, 3, 224, 224}, Data: make([]float32, tensor.ImageLen)},
		{Shape: []int64{1, 224, 224, 3}, Data: make([]float32, 12)},
		filledBatch(1, 2),
	}
	for _, b := range bad {
		_, err := c.Predict(context.Background(), b)
		var ie *InferenceError
		assert.True(t, errors.As(err, &ie), "got %v", err)
	}
	assert.Zero(t, backbone.calls)
}

func TestPredictBackboneFailure(t *testing.T) {
	c, err := NewClassifier(testMetadata(), failingBackbone{}, NewHead(3, 4, rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), filledBatch(1, 0.1))
	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, err.Error(), "session exploded")
}

func TestPredictCancelled(t *testing.T) {
	c, err := NewClassifier(testMetadata(), &channelMeans{}, NewHead(3, 4, rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Predict(ctx, filledBatch(1, 0.1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClassifierMismatch(t *testing.T) {
	_, err := NewClassifier(testMetadata(), &channelMeans{}, NewHead(5, 4, rand.New(rand.NewSource(7))))
	assert.Error(t, err)

	meta := testMetadata()
	meta.ImageSize = 299
	_, err = NewClassifier(meta, &channelMeans{}, NewHead(3, 4, rand.New(rand.NewSource(7))))
	assert.Error(t, err)

	_, err = NewClassifier(testMetadata(), nil, NewHead(3, 4, rand.New(rand.NewSource(7))))
	assert.Error(t, err)
}

func TestBundleRoundTripPreservesPredictions(t *testing.T) {
	head := NewHead(3, 4, rand.New(rand.NewSource(11)))
	path := filepath.Join(t.TempDir(), "models", "recognition_model.skm")
	require.NoError(t, SaveBundle(path, &Bundle{Metadata: testMetadata(), Backbone: []byte("onnx-bytes"), Head: head}))

	loaded, err := OpenBundle(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("onnx-bytes"), loaded.Backbone)
	assert.Equal(t, testMetadata(), loaded.Metadata)

	before, err := NewClassifier(testMetadata(), &channelMeans{}, head)
	require.NoError(t, err)
	after, err := NewClassifier(loaded.Metadata, &channelMeans{}, loaded.Head)
	require.NoError(t, err)

	batch := filledBatch(1, 0.33)
	want, err := before.Predict(context.Background(), batch)
	require.NoError(t, err)
	got, err := after.Predict(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReadBundleRejects(t *testing.T) {
	_, err := ReadBundle(bytes.NewReader([]byte("not a zip")), 9)
	assert.Error(t, err)

	_, err = OpenBundle(filepath.Join(t.TempDir(), "missing.skm"))
	assert.Error(t, err)

	meta := testMetadata()
	meta.Format = "keras"
	var buf bytes.Buffer
	head := NewHead(3, 4, rand.New(rand.NewSource(1)))
	require.NoError(t, WriteBundle(&buf, &Bundle{Metadata: meta, Head: head}))
	_, err = ReadBundle(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.ErrorContains(t, err, "unsupported bundle format")
}

// constantBackbone returns the same value for every feature.
type constantBackbone struct{ v float64 }

func (b constantBackbone) Features(batch *tensor.Batch) (*mat.Dense, error) {
	out := mat.NewDense(batch.Len(), 3, nil)
	for i := 0; i < batch.Len(); i++ {
		out.SetRow(i, []float64{b.v, b.v, b.v})
	}
	return out, nil
}

func TestPredictRejectsNonFiniteOutput(t *testing.T) {
	c, err := NewClassifier(testMetadata(), constantBackbone{v: math.NaN()}, NewHead(3, 4, rand.New(rand.NewSource(3))))
	require.NoError(t, err)

	out, err := c.Predict(context.Background(), filledBatch(1, 0.5))
	assert.Nil(t, out)
	var ie *InferenceError
	assert.ErrorAs(t, err, &ie)
	assert.ErrorContains(t, err, "probability")
}

func TestNewClassifierChecksInputShape(t *testing.T) {
	head := func() *Head { return NewHead(3, 4, rand.New(rand.NewSource(7))) }

	for _, shape := range [][]int64{
		{-1, 299, 299, 3},
		{-1, 3, 224, 224},
		{-1, 224, 224},
		{0, 224, 224, 3},
	} {
		meta := testMetadata()
		meta.InputShape = shape
		_, err := NewClassifier(meta, &channelMeans{}, head())
		assert.ErrorContains(t, err, "input shape", "shape %v", shape)
	}

	for _, shape := range [][]int64{nil, {-1, 224, 224, 3}, {1, 224, 224, 3}} {
		meta := testMetadata()
		meta.InputShape = shape
		_, err := NewClassifier(meta, &channelMeans{}, head())
		assert.NoError(t, err, "shape %v", shape)
	}
}
