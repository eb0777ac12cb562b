// Command pack imports a directory of <isic_id>.<ext> images into an image
// archive for the training pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/archive"
	"github.com/Brownie44l1/skincheck-api/internal/logging"
	"github.com/Brownie44l1/skincheck-api/internal/preprocess"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

func main() {
	args := struct {
		In       string `arg:"positional,required" help:"directory of images named by isic_id"`
		Archive  string `arg:"--archive,required" help:"sqlite://path or leveldb://dir"`
		Verify   bool   `arg:"--verify" help:"decode every image before storing it"`
		LogLevel string `arg:"--log-level"`
	}{
		LogLevel: "info",
	}
	arg.MustParse(&args)

	log, err := logging.New(args.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	n, err := pack(context.Background(), args.In, args.Archive, args.Verify, log)
	if err != nil {
		log.Error("pack failed", zap.Int("stored", n), zap.Error(err))
		os.Exit(1)
	}
	log.Info("pack complete", zap.Int("stored", n), zap.String("archive", args.Archive))
}

// pack stores every image file directly under dir, keyed by its file name
// without extension. It returns how many images were stored.
func pack(ctx context.Context, dir, dsn string, verify bool, log *zap.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	store, err := archive.Open(dsn)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	stored := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || !imageExts[ext] {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return stored, err
		}
		if verify {
			if _, _, err := preprocess.Decode(data); err != nil {
				return stored, fmt.Errorf("%s: %w", e.Name(), err)
			}
		}
		if err := store.Put(ctx, id, data); err != nil {
			return stored, fmt.Errorf("failed to store %s: %w", id, err)
		}
		stored++
		if stored%1000 == 0 {
			log.Info("packing images", zap.Int("stored", stored))
		}
	}
	return stored, nil
}
