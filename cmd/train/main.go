// Command train fine-tunes the classification head on a frozen ONNX backbone
// and writes the model bundle the server loads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/archive"
	"github.com/Brownie44l1/skincheck-api/internal/logging"
	"github.com/Brownie44l1/skincheck-api/internal/model"
	"github.com/Brownie44l1/skincheck-api/internal/training"
)

type args struct {
	Metadata string `arg:"--metadata,required" help:"training metadata CSV with isic_id and target columns"`
	Archive  string `arg:"--archive,required" help:"image archive, sqlite://path or leveldb://dir"`
	Backbone string `arg:"--backbone,required" help:"ONNX backbone file"`
	Out      string `arg:"--out" help:"where to write the model bundle"`

	InputName  string `arg:"--input-name" help:"backbone input tensor name"`
	OutputName string `arg:"--output-name" help:"backbone output tensor name"`
	Layout     string `arg:"--layout" help:"layout of rank 4 backbone outputs, NHWC or NCHW"`
	ONNXLib    string `arg:"--onnxruntime-lib,env:ONNXRUNTIME_LIB" help:"path of the onnxruntime shared library"`

	Positives        int     `arg:"--positives" help:"malignant rows to sample"`
	Negatives        int     `arg:"--negatives" help:"benign rows to sample"`
	Seed             int64   `arg:"--seed"`
	UnseededMinority bool    `arg:"--unseeded-minority" help:"draw malignant rows from a time-seeded source"`
	ValFraction      float64 `arg:"--val-fraction"`
	BatchSize        int     `arg:"--batch-size"`
	Epochs           int     `arg:"--epochs"`
	LearningRate     float64 `arg:"--lr"`
	Hidden           int     `arg:"--hidden" help:"hidden units in the head"`
	LogLevel         string  `arg:"--log-level,env:LOG_LEVEL"`
}

func main() {
	train := training.DefaultTrainConfig()
	a := args{
		Out:          "models/recognition_model.skm",
		InputName:    "input",
		OutputName:   "features",
		Layout:       model.LayoutNHWC,
		Positives:    350,
		Negatives:    5500,
		Seed:         42,
		ValFraction:  0.2,
		BatchSize:    train.BatchSize,
		Epochs:       train.Epochs,
		LearningRate: train.LearningRate,
		Hidden:       train.HiddenUnits,
		LogLevel:     "info",
	}
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run(a args) error {
	log, err := logging.New(a.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := training.ReadMetadataFile(a.Metadata)
	if err != nil {
		return err
	}
	log.Info("read metadata", zap.String("path", a.Metadata), zap.Int("rows", len(rows)))

	store, err := archive.Open(a.Archive)
	if err != nil {
		return err
	}
	defer store.Close()

	onnx, err := os.ReadFile(a.Backbone)
	if err != nil {
		return err
	}
	if err := model.InitRuntime(a.ONNXLib); err != nil {
		return err
	}
	defer model.DestroyRuntime()

	spec := model.BackboneSpec{InputName: a.InputName, OutputName: a.OutputName, Layout: a.Layout}
	backbone, err := model.NewONNXBackbone(onnx, spec)
	if err != nil {
		return err
	}
	defer backbone.Close()

	start := time.Now()
	p := &training.Pipeline{Archive: store, Backbone: backbone, Log: log}
	bundle, err := p.Run(ctx, rows, training.Options{
		Sample: training.SampleConfig{
			Malignant:        a.Positives,
			Benign:           a.Negatives,
			Seed:             a.Seed,
			UnseededMinority: a.UnseededMinority,
		},
		ValFraction: a.ValFraction,
		SplitSeed:   a.Seed,
		Train: training.TrainConfig{
			Epochs:       a.Epochs,
			BatchSize:    a.BatchSize,
			LearningRate: a.LearningRate,
			HiddenUnits:  a.Hidden,
			Seed:         a.Seed,
		},
		BackboneONNX: onnx,
		BackboneSpec: spec,
		OutputPath:   a.Out,
	})
	if err != nil {
		log.Error("training failed", zap.Error(err))
		return err
	}

	last := bundle.Metadata.Training.History[len(bundle.Metadata.Training.History)-1]
	log.Info("training complete",
		zap.String("out", a.Out),
		zap.Float64("val_loss", last.ValLoss),
		zap.Float64("val_accuracy", last.ValAccuracy),
		zap.Duration("took", time.Since(start)))
	return nil
}
