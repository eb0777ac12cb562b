package weather

import (
	"errors"
	"math"
)

// Risk is a skin cancer risk band derived from the UV index.
type Risk string

const (
	RiskLow      Risk = "Low"
	RiskModerate Risk = "Moderate"
	RiskHigh     Risk = "High"
	RiskVeryHigh Risk = "Very High"
	RiskExtreme  Risk = "Extreme"
)

var ErrInvalidUVIndex = errors.New("uv index must be a non-negative number")

// ClassifyRisk maps a UV index to its band. Bands are lower-inclusive:
// [0,3) Low, [3,6) Moderate, [6,8) High, [8,11) Very High, [11,inf) Extreme.
func ClassifyRisk(uv float64) (Risk, error) {
	switch {
	case math.IsNaN(uv) || uv < 0:
		return "", ErrInvalidUVIndex
	case uv < 3:
		return RiskLow, nil
	case uv < 6:
		return RiskModerate, nil
	case uv < 8:
		return RiskHigh, nil
	case uv < 11:
		return RiskVeryHigh, nil
	default:
		return RiskExtreme, nil
	}
}
