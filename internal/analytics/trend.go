package analytics

import (
	"github.com/shopspring/decimal"
)

// IndexBasis selects the regression x coordinate.
type IndexBasis int

const (
	// IndexPresent numbers only the buckets where the fuel type is present.
	IndexPresent IndexBasis = iota
	// IndexBucket uses the position in the full bucket list, so gaps widen x.
	IndexBucket
)

// TrendLine is an OLS fit over bucket last prices.
type TrendLine struct {
	FuelType  string
	Slope     decimal.Decimal
	Intercept decimal.Decimal
	Points    int
	// Values is aligned with the input buckets. Under IndexPresent, buckets
	// missing the fuel type carry no value.
	Values []decimal.NullDecimal
}

// Trend fits a line with the IndexPresent basis.
func Trend(buckets []Bucket, fuelType string) (TrendLine, bool) {
	return TrendWithBasis(buckets, fuelType, IndexPresent)
}

// TrendWithBasis fits a least-squares line through (index, last) pairs for
// fuelType. It reports false with fewer than two points or a degenerate fit.
func TrendWithBasis(buckets []Bucket, fuelType string, basis IndexBasis) (TrendLine, bool) {
	var (
		xs        []decimal.Decimal
		ys        []decimal.Decimal
		positions []int
	)
	for i, b := range buckets {
		stats, ok := b.Fuels[fuelType]
		if !ok {
			continue
		}
		x := len(xs)
		if basis == IndexBucket {
			x = i
		}
		xs = append(xs, decimal.NewFromInt(int64(x)))
		ys = append(ys, stats.Last)
		positions = append(positions, i)
	}

	slope, intercept, ok := leastSquares(xs, ys)
	if !ok {
		return TrendLine{}, false
	}

	line := TrendLine{
		FuelType:  fuelType,
		Slope:     slope,
		Intercept: intercept,
		Points:    len(xs),
		Values:    make([]decimal.NullDecimal, len(buckets)),
	}
	switch basis {
	case IndexBucket:
		for i := range buckets {
			line.Values[i] = decimal.NewNullDecimal(slope.Mul(decimal.NewFromInt(int64(i))).Add(intercept))
		}
	default:
		for k, pos := range positions {
			line.Values[pos] = decimal.NewNullDecimal(slope.Mul(xs[k]).Add(intercept))
		}
	}
	return line, true
}

func leastSquares(xs, ys []decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return decimal.Zero, decimal.Zero, false
	}
	n := decimal.NewFromInt(int64(len(xs)))
	var sumX, sumY, sumXY, sumXX decimal.Decimal
	for i := range xs {
		sumX = sumX.Add(xs[i])
		sumY = sumY.Add(ys[i])
		sumXY = sumXY.Add(xs[i].Mul(ys[i]))
		sumXX = sumXX.Add(xs[i].Mul(xs[i]))
	}
	denom := n.Mul(sumXX).Sub(sumX.Mul(sumX))
	if denom.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	slope := n.Mul(sumXY).Sub(sumX.Mul(sumY)).Div(denom)
	intercept := sumY.Sub(slope.Mul(sumX)).Div(n)
	return slope, intercept, true
}
