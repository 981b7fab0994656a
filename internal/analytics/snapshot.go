package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Snapshot returns every observation sharing the newest timestamp.
func Snapshot(obs []storage.Observation) []storage.Observation {
	if len(obs) == 0 {
		return []storage.Observation{}
	}
	latest := obs[0].Timestamp
	for _, o := range obs[1:] {
		if o.Timestamp.After(latest) {
			latest = o.Timestamp
		}
	}
	return SnapshotAt(obs, latest)
}

// SnapshotAt returns the observations stamped exactly at. When none match, it
// falls back to the newest observation per fuel type.
func SnapshotAt(obs []storage.Observation, at time.Time) []storage.Observation {
	out := make([]storage.Observation, 0)
	for _, o := range obs {
		if o.Timestamp.Equal(at) {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = newestPerFuel(obs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FuelType < out[j].FuelType
	})
	return out
}

func newestPerFuel(obs []storage.Observation) []storage.Observation {
	newest := make(map[string]storage.Observation)
	for _, o := range obs {
		cur, ok := newest[o.FuelType]
		if !ok || o.Timestamp.After(cur.Timestamp) {
			newest[o.FuelType] = o
		}
	}
	out := make([]storage.Observation, 0, len(newest))
	for _, o := range newest {
		out = append(out, o)
	}
	return out
}

// PriceDelta describes how one fuel type moved between two snapshots.
type PriceDelta struct {
	FuelType string
	Previous decimal.Decimal
	Current  decimal.Decimal
	Delta    decimal.Decimal
	Percent  decimal.NullDecimal
	// Added marks a fuel type missing from the previous snapshot.
	Added bool
}

// DiffSnapshots compares two snapshots and reports the fuel types whose price
// moved. Types that vanished from current are not reported.
func DiffSnapshots(previous, current []storage.Observation) []PriceDelta {
	before := make(map[string]decimal.Decimal, len(previous))
	for _, o := range previous {
		before[o.FuelType] = o.Price
	}

	deltas := make([]PriceDelta, 0)
	for _, o := range current {
		prev, ok := before[o.FuelType]
		if !ok {
			deltas = append(deltas, PriceDelta{FuelType: o.FuelType, Current: o.Price, Added: true})
			continue
		}
		if !Changed(prev, o.Price) {
			continue
		}
		deltas = append(deltas, PriceDelta{
			FuelType: o.FuelType,
			Previous: prev,
			Current:  o.Price,
			Delta:    o.Price.Sub(prev),
			Percent:  percentChange(o.Price, prev),
		})
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].FuelType < deltas[j].FuelType
	})
	return deltas
}

func percentChange(current, reference decimal.Decimal) decimal.NullDecimal {
	if !reference.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(current.Sub(reference).Div(reference).Mul(hundred))
}
