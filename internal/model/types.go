package model

import "time"

// FormatV1 identifies the bundle layout written by SaveBundle.
const FormatV1 = "skincheck.model.v1"

// Metadata is the manifest stored next to the weights. It describes the
// architecture well enough to rebuild the classifier.
type Metadata struct {
	Format     string       `json:"format"`
	InputShape []int64      `json:"input_shape"`
	ImageSize  int          `json:"image_size"`
	Classes    []string     `json:"classes"`
	Backbone   BackboneSpec `json:"backbone"`
	Head       HeadSpec     `json:"head"`
	Training   *TrainingRun `json:"training,omitempty"`
}

type BackboneSpec struct {
	InputName   string `json:"input_name"`
	OutputName  string `json:"output_name"`
	Layout      string `json:"layout"` // NHWC or NCHW for rank 4 outputs
	FeatureSize int    `json:"feature_size"`
}

type HeadSpec struct {
	HiddenUnits int    `json:"hidden_units"`
	Activation  string `json:"activation"`
	Output      string `json:"output"`
}

// TrainingRun records how a bundle was produced.
type TrainingRun struct {
	CreatedAt    time.Time    `json:"created_at"`
	Epochs       int          `json:"epochs"`
	BatchSize    int          `json:"batch_size"`
	LearningRate float64      `json:"learning_rate"`
	Seed         int64        `json:"seed"`
	TrainSize    int          `json:"train_size"`
	ValSize      int          `json:"val_size"`
	History      []EpochStats `json:"history"`
}

type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

type PredictionResponse struct {
	Prediction [][]float32 `json:"prediction"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
