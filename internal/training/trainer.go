package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/skincheck-api/internal/model"
)

type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	HiddenUnits  int
	Seed         int64
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Epochs: 10, BatchSize: 32, LearningRate: 1e-3, HiddenUnits: 512, Seed: 42}
}

// Trainer fits a new head on top of a frozen backbone.
type Trainer struct {
	backbone model.Backbone
	cfg      TrainConfig
	log      *zap.Logger
}

func NewTrainer(backbone model.Backbone, cfg TrainConfig, log *zap.Logger) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{backbone: backbone, cfg: cfg, log: log.Named("trainer")}
}

// Fit trains for the configured number of epochs and returns the head with
// per-epoch statistics. The backbone is frozen and the augmentation is a
// plain rescale, so every image's pooled features are extracted once and
// reused across epochs. Fit has no early stopping and no checkpoints: an
// error at any point discards the run.
func (t *Trainer) Fit(ctx context.Context, train, val []Record) (*model.Head, []model.EpochStats, error) {
	if len(train) == 0 || len(val) == 0 {
		return nil, nil, errors.New("training and validation sets must not be empty")
	}
	if t.cfg.Epochs < 1 || t.cfg.BatchSize < 1 || t.cfg.HiddenUnits < 1 {
		return nil, nil, fmt.Errorf("invalid training config %+v", t.cfg)
	}

	start := time.Now()
	xTrain, yTrain, err := t.extract(ctx, train)
	if err != nil {
		return nil, nil, fmt.Errorf("train features: %w", err)
	}
	xVal, yVal, err := t.extract(ctx, val)
	if err != nil {
		return nil, nil, fmt.Errorf("validation features: %w", err)
	}
	_, features := xTrain.Dims()
	t.log.Info("extracted backbone features",
		zap.Int("train", len(yTrain)), zap.Int("val", len(yVal)),
		zap.Int("features", features), zap.Duration("took", time.Since(start)))

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	head := model.NewHead(features, t.cfg.HiddenUnits, rng)
	opt := NewAdam(head.Params(), t.cfg.LearningRate)

	// Training batches index into the extracted features in the order the
	// shuffling generator picks for each epoch.
	batches := NewGenerator(train, t.cfg.BatchSize, true, t.cfg.Seed)

	history := make([]model.EpochStats, 0, t.cfg.Epochs)
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		epochStart := time.Now()
		var lossSum, hitSum float64
		for _, idx := range batches.Batches() {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			x, y := rows(xTrain, yTrain, idx)

			prob, loss, grads := head.Backward(x, y)
			opt.Step(grads.Slices())

			n := float64(len(idx))
			lossSum += loss * n
			hitSum += model.Accuracy(prob, y) * n
		}

		valProb := head.Forward(xVal)
		stats := model.EpochStats{
			Epoch:       epoch,
			Loss:        lossSum / float64(len(yTrain)),
			Accuracy:    hitSum / float64(len(yTrain)),
			ValLoss:     model.BinaryCrossEntropy(valProb, yVal),
			ValAccuracy: model.Accuracy(valProb, yVal),
		}
		history = append(history, stats)
		t.log.Info("epoch finished",
			zap.Int("epoch", epoch), zap.Int("epochs", t.cfg.Epochs),
			zap.Float64("loss", stats.Loss), zap.Float64("accuracy", stats.Accuracy),
			zap.Float64("val_loss", stats.ValLoss), zap.Float64("val_accuracy", stats.ValAccuracy),
			zap.Duration("took", time.Since(epochStart)))
	}
	return head, history, nil
}

// extract runs the backbone over rescaled batches of records.
func (t *Trainer) extract(ctx context.Context, records []Record) (*mat.Dense, []float64, error) {
	var x *mat.Dense
	y := make([]float64, 0, len(records))
	gen := NewGenerator(records, t.cfg.BatchSize, false, 0)

	err := gen.Each(func(b Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := t.backbone.Features(b.Images)
		if err != nil {
			return err
		}
		n, cols := f.Dims()
		if n != len(b.Labels) {
			return fmt.Errorf("backbone returned %d rows for %d images", n, len(b.Labels))
		}
		if x == nil {
			x = mat.NewDense(len(records), cols, nil)
		} else if _, want := x.Dims(); want != cols {
			return fmt.Errorf("backbone returned %d features, earlier batches had %d", cols, want)
		}
		for i := 0; i < n; i++ {
			x.SetRow(len(y)+i, f.RawRowView(i))
		}
		y = append(y, b.Labels...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func rows(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	labels := make([]float64, len(idx))
	for i, j := range idx {
		out.SetRow(i, x.RawRowView(j))
		labels[i] = y[j]
	}
	return out, labels
}
