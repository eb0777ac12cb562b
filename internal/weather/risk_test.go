package weather

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRiskBoundaries(t *testing.T) {
	cases := []struct {
		uv   float64
		want Risk
	}{
		{0, RiskLow},
		{2.9, RiskLow},
		{3.0, RiskModerate},
		{5.9, RiskModerate},
		{6.0, RiskHigh},
		{7.9, RiskHigh},
		{8.0, RiskVeryHigh},
		{10.9, RiskVeryHigh},
		{11.0, RiskExtreme},
		{15.2, RiskExtreme},
		{math.Inf(1), RiskExtreme},
	}
	for _, tc := range cases {
		got, err := ClassifyRisk(tc.uv)
		assert.NoError(t, err, "uv=%v", tc.uv)
		assert.Equal(t, tc.want, got, "uv=%v", tc.uv)
	}
}

func TestClassifyRiskInvalid(t *testing.T) {
	for _, uv := range []float64{math.NaN(), -0.1, math.Inf(-1)} {
		_, err := ClassifyRisk(uv)
		assert.ErrorIs(t, err, ErrInvalidUVIndex, "uv=%v", uv)
	}
}
