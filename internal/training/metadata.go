package training

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

type Label int

const (
	Benign    Label = 0
	Malignant Label = 1
)

// Row is one line of the training metadata. Other columns are ignored.
type Row struct {
	IsicID string `csv:"isic_id"`
	Target Label  `csv:"target"`
}

// ReadMetadata parses the metadata CSV and rejects rows without an id or
// with a target other than 0 or 1.
func ReadMetadata(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	for i, row := range rows {
		if row.IsicID == "" {
			return nil, fmt.Errorf("metadata row %d: missing isic_id", i+1)
		}
		if row.Target != Benign && row.Target != Malignant {
			return nil, fmt.Errorf("metadata row %d (%s): target %d is not 0 or 1", i+1, row.IsicID, row.Target)
		}
	}
	return rows, nil
}

func ReadMetadataFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMetadata(f)
}
