package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func bucketsOf(fuel string, lasts ...string) []Bucket {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]Bucket, len(lasts))
	for i, last := range lasts {
		out[i] = Bucket{
			Key:     base.AddDate(0, 0, i).Format("2006-01-02"),
			Instant: base.AddDate(0, 0, i),
			Fuels:   map[string]FuelStats{},
		}
		if last == "" {
			continue
		}
		p := decimal.RequireFromString(last)
		out[i].Fuels[fuel] = FuelStats{Last: p, Min: p, Max: p, Samples: 1}
	}
	return out
}

func TestTrendReproducesLinearSeries(t *testing.T) {
	line, ok := Trend(bucketsOf(petrol95, "1.500", "1.520", "1.540"), petrol95)
	require.True(t, ok)
	require.Equal(t, 3, line.Points)
	requireDecimal(t, "0.02", line.Slope)
	requireDecimal(t, "1.5", line.Intercept)

	for i, want := range []string{"1.500", "1.520", "1.540"} {
		require.True(t, line.Values[i].Valid)
		requireDecimal(t, want, line.Values[i].Decimal)
	}
}

func TestTrendInsufficientData(t *testing.T) {
	_, ok := Trend(bucketsOf(petrol95, "1.500"), petrol95)
	require.False(t, ok)

	_, ok = Trend(bucketsOf(petrol95, "1.500", "", ""), petrol95)
	require.False(t, ok)

	_, ok = Trend(bucketsOf(petrol95, "1.500", "1.510"), diesel)
	require.False(t, ok, "未出现的油品不应生成趋势线")

	_, ok = Trend(nil, petrol95)
	require.False(t, ok)
}

func TestTrendIndexBasis(t *testing.T) {
	// fuel missing from the middle bucket
	buckets := bucketsOf(petrol95, "1.500", "", "1.540")

	present, ok := TrendWithBasis(buckets, petrol95, IndexPresent)
	require.True(t, ok)
	requireDecimal(t, "0.04", present.Slope)
	require.True(t, present.Values[0].Valid)
	require.False(t, present.Values[1].Valid)
	requireDecimal(t, "1.540", present.Values[2].Decimal)

	full, ok := TrendWithBasis(buckets, petrol95, IndexBucket)
	require.True(t, ok)
	requireDecimal(t, "0.02", full.Slope)
	require.True(t, full.Values[1].Valid)
	requireDecimal(t, "1.520", full.Values[1].Decimal)
	requireDecimal(t, "1.540", full.Values[2].Decimal)
}

func TestTrendFlatSeries(t *testing.T) {
	line, ok := Trend(bucketsOf(petrol95, "1.5", "1.5", "1.5", "1.5"), petrol95)
	require.True(t, ok)
	require.True(t, line.Slope.IsZero())
	for _, v := range line.Values {
		requireDecimal(t, "1.5", v.Decimal)
	}
}

func TestLeastSquaresDegenerate(t *testing.T) {
	one := decimal.NewFromInt(1)
	_, _, ok := leastSquares([]decimal.Decimal{one, one}, []decimal.Decimal{one, decimal.NewFromInt(2)})
	require.False(t, ok, "x 全部相同时应返回 undefined")
}
