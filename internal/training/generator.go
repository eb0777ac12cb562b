package training

import (
	"math/rand"

	"github.com/Brownie44l1/skincheck-api/internal/preprocess"
	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

// Batch is a rescaled image batch with its labels.
type Batch struct {
	Images *tensor.Batch
	Labels []float64
}

// Generator rescales records to [0,1] and yields them in fixed-size batches.
// The last batch of an epoch may be smaller.
type Generator struct {
	records   []Record
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

func NewGenerator(records []Record, batchSize int, shuffle bool, seed int64) *Generator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Generator{
		records:   records,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Len is the number of batches per epoch.
func (g *Generator) Len() int {
	return (len(g.records) + g.batchSize - 1) / g.batchSize
}

// Batches returns the record indices of each batch for one epoch, in a new
// order each call when shuffling.
func (g *Generator) Batches() [][]int {
	order := make([]int, len(g.records))
	for i := range order {
		order[i] = i
	}
	if g.shuffle {
		g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([][]int, 0, g.Len())
	for start := 0; start < len(order); start += g.batchSize {
		batches = append(batches, order[start:min(start+g.batchSize, len(order))])
	}
	return batches
}

// Each runs fn on every rescaled batch of one epoch, in Batches order. It
// stops at the first error fn returns.
func (g *Generator) Each(fn func(Batch) error) error {
	for _, idx := range g.Batches() {
		b := Batch{Images: tensor.NewBatch(len(idx)), Labels: make([]float64, len(idx))}
		for i, j := range idx {
			r := g.records[j]
			preprocess.Rescale(b.Images.Image(i), r.Pixels)
			b.Labels[i] = float64(r.Label)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
