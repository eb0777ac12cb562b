package training

import (
	"fmt"
	"math/rand"
	"time"
)

type SampleConfig struct {
	Malignant int
	Benign    int
	Seed      int64
	// UnseededMinority draws the malignant rows from a time-seeded source,
	// matching runs that only fixed the seed of the majority class.
	UnseededMinority bool
}

// Sample draws fixed counts per class without replacement. Malignant rows
// come first, then benign rows, each in draw order.
func Sample(rows []Row, cfg SampleConfig) ([]Row, error) {
	var malignant, benign []Row
	for _, r := range rows {
		if r.Target == Malignant {
			malignant = append(malignant, r)
		} else {
			benign = append(benign, r)
		}
	}

	minoritySeed := cfg.Seed
	if cfg.UnseededMinority {
		minoritySeed = time.Now().UnixNano()
	}

	pos, err := draw(malignant, cfg.Malignant, minoritySeed)
	if err != nil {
		return nil, fmt.Errorf("malignant: %w", err)
	}
	neg, err := draw(benign, cfg.Benign, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("benign: %w", err)
	}
	return append(pos, neg...), nil
}

func draw(rows []Row, n int, seed int64) ([]Row, error) {
	if n < 0 || n > len(rows) {
		return nil, fmt.Errorf("cannot sample %d of %d rows", n, len(rows))
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]Row, n)
	for i, idx := range rng.Perm(len(rows))[:n] {
		out[i] = rows[idx]
	}
	return out, nil
}
