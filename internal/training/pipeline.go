package training

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/archive"
	"github.com/Brownie44l1/skincheck-api/internal/model"
	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

type Options struct {
	Sample      SampleConfig
	ValFraction float64
	SplitSeed   int64
	Train       TrainConfig

	// Backbone ONNX bytes and how to run them, copied into the bundle.
	BackboneONNX []byte
	BackboneSpec model.BackboneSpec

	// OutputPath receives the bundle once training succeeds.
	OutputPath string
}

// Pipeline runs sample -> load -> split -> fine-tune -> persist, front to back.
type Pipeline struct {
	Archive  archive.Archive
	Backbone model.Backbone
	Log      *zap.Logger
}

// Run trains a head on rows and writes the bundle to opts.OutputPath. Nothing
// is written unless every stage succeeds.
func (p *Pipeline) Run(ctx context.Context, rows []Row, opts Options) (*model.Bundle, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	sampled, err := Sample(rows, opts.Sample)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	log.Info("sampled metadata",
		zap.Int("malignant", opts.Sample.Malignant), zap.Int("benign", opts.Sample.Benign),
		zap.Int64("seed", opts.Sample.Seed), zap.Bool("unseeded_minority", opts.Sample.UnseededMinority))

	records, err := LoadImages(ctx, p.Archive, sampled, log)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	train, val, err := Split(records, opts.ValFraction, opts.SplitSeed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	log.Info("split dataset", zap.Int("train", len(train)), zap.Int("val", len(val)))

	head, history, err := NewTrainer(p.Backbone, opts.Train, log).Fit(ctx, train, val)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	spec := opts.BackboneSpec
	spec.FeatureSize = head.Features()
	bundle := &model.Bundle{
		Metadata: model.Metadata{
			Format:     model.FormatV1,
			InputShape: []int64{-1, tensor.ImageSize, tensor.ImageSize, tensor.Channels},
			ImageSize:  tensor.ImageSize,
			Classes:    []string{"benign", "malignant"},
			Backbone:   spec,
			Head:       model.HeadSpec{HiddenUnits: head.Hidden(), Activation: "gelu", Output: "sigmoid"},
			Training: &model.TrainingRun{
				CreatedAt:    time.Now().UTC(),
				Epochs:       opts.Train.Epochs,
				BatchSize:    opts.Train.BatchSize,
				LearningRate: opts.Train.LearningRate,
				Seed:         opts.Train.Seed,
				TrainSize:    len(train),
				ValSize:      len(val),
				History:      history,
			},
		},
		Backbone: opts.BackboneONNX,
		Head:     head,
	}

	if opts.OutputPath != "" {
		if err := model.SaveBundle(opts.OutputPath, bundle); err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
		log.Info("saved model", zap.String("path", opts.OutputPath))
	}
	return bundle, nil
}
