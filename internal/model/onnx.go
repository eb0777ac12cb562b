package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

// InitRuntime loads the onnxruntime shared library and initialises the
// environment. It is a no-op when the environment is already up.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXBackbone runs a frozen feature extractor with onnxruntime. Tensors are
// allocated per call, so concurrent Features calls share no buffers.
type ONNXBackbone struct {
	session *ort.DynamicAdvancedSession
	layout  string
}

// NewONNXBackbone creates a session from serialized ONNX bytes.
// InitRuntime must have been called.
func NewONNXBackbone(onnx []byte, spec BackboneSpec) (*ONNXBackbone, error) {
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(onnx,
		[]string{spec.InputName}, []string{spec.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXBackbone{session: session, layout: spec.Layout}, nil
}

func (b *ONNXBackbone) Features(batch *tensor.Batch) (*mat.Dense, error) {
	input, err := ort.NewTensor(ort.NewShape(batch.Shape...), batch.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.ArbitraryTensor{nil}
	if err := b.session.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	output, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("backbone output is %T, want float32 tensor", outputs[0])
	}
	return globalAveragePool(output.GetData(), output.GetShape(), b.layout)
}

func (b *ONNXBackbone) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Destroy()
}
