package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var _ Backbone = (*ONNXBackbone)(nil)

func TestNewONNXBackboneNeedsRuntime(t *testing.T) {
	if err := DestroyRuntime(); err != nil {
		t.Fatal(err)
	}
	b, err := NewONNXBackbone([]byte("not a model"), BackboneSpec{InputName: "input", OutputName: "features"})
	assert.Error(t, err)
	assert.Nil(t, b)
}
