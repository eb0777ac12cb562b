package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/Brownie44l1/skincheck-api/internal/archive"
	"github.com/Brownie44l1/skincheck-api/internal/preprocess"
)

// Record is one loaded training image: 224x224x3 pixels, not yet rescaled.
type Record struct {
	ID     string
	Label  Label
	Pixels []uint8
}

// LoadImages fetches each row's image from the archive, converts it to RGB
// and resizes it. Any failure aborts the load.
func LoadImages(ctx context.Context, a archive.Archive, rows []Row, log *zap.Logger) ([]Record, error) {
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := a.Get(ctx, row.IsicID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", row.IsicID, err)
		}
		pixels, err := preprocess.Image(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", row.IsicID, err)
		}
		records = append(records, Record{ID: row.IsicID, Label: row.Target, Pixels: pixels})

		if (i+1)%500 == 0 {
			log.Info("loading images", zap.Int("done", i+1), zap.Int("total", len(rows)))
		}
	}
	return records, nil
}

// Split shuffles records with seed and holds out ceil(n*valFraction) of them
// for validation. Classes are not stratified.
func Split(records []Record, valFraction float64, seed int64) (train, val []Record, err error) {
	if valFraction <= 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction %v must be in (0,1)", valFraction)
	}
	nVal := int(math.Ceil(float64(len(records)) * valFraction))
	if nVal >= len(records) {
		return nil, nil, fmt.Errorf("cannot split %d records with validation fraction %v", len(records), valFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(len(records))
	val = make([]Record, 0, nVal)
	train = make([]Record, 0, len(records)-nVal)
	for i, idx := range perm {
		if i < nVal {
			val = append(val, records[idx])
		} else {
			train = append(train, records[idx])
		}
	}
	return train, val, nil
}
