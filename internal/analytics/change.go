package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/storage"
)

// DefaultWindows are the lookbacks reported when none are requested.
var DefaultWindows = []time.Duration{
	24 * time.Hour,
	7 * 24 * time.Hour,
	30 * 24 * time.Hour,
	90 * 24 * time.Hour,
}

// FuelChange is the change of a single fuel type over one window.
type FuelChange struct {
	FuelType    string
	Current     decimal.Decimal
	Reference   decimal.Decimal
	CurrentAt   time.Time
	ReferenceAt time.Time
	Absolute    decimal.Decimal
	Percent     decimal.NullDecimal
	// Fallback is set when history is shorter than the window and the oldest
	// observation served as reference.
	Fallback bool
}

// ChangeRecord averages FuelChange values across the selected fuel types.
type ChangeRecord struct {
	Window        time.Duration
	Current       decimal.Decimal
	Reference     decimal.Decimal
	AbsoluteDelta decimal.Decimal
	PercentDelta  decimal.NullDecimal
	FuelTypes     []FuelChange
}

// Changes computes per-window price changes relative to now. It reports false
// when fuelTypes is empty or none of them has any history.
func Changes(obs []storage.Observation, fuelTypes []string, windows []time.Duration, now time.Time) (map[time.Duration]ChangeRecord, bool) {
	if len(fuelTypes) == 0 {
		return nil, false
	}
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	wanted := make(map[string]struct{}, len(fuelTypes))
	for _, f := range fuelTypes {
		wanted[f] = struct{}{}
	}
	series := make(map[string][]storage.Observation, len(wanted))
	for _, o := range obs {
		if _, ok := wanted[o.FuelType]; ok {
			series[o.FuelType] = append(series[o.FuelType], o)
		}
	}
	if len(series) == 0 {
		return nil, false
	}

	fuels := make([]string, 0, len(series))
	for fuel, rows := range series {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		})
		fuels = append(fuels, fuel)
	}
	sort.Strings(fuels)

	out := make(map[time.Duration]ChangeRecord, len(windows))
	for _, w := range windows {
		cutoff := now.Add(-w)
		record := ChangeRecord{Window: w, FuelTypes: make([]FuelChange, 0, len(fuels))}
		for _, fuel := range fuels {
			record.FuelTypes = append(record.FuelTypes, fuelChange(fuel, series[fuel], cutoff))
		}
		average(&record)
		out[w] = record
	}
	return out, true
}

// fuelChange expects rows sorted newest first.
func fuelChange(fuel string, rows []storage.Observation, cutoff time.Time) FuelChange {
	current := rows[0]
	reference := rows[len(rows)-1]
	fallback := true
	for _, r := range rows {
		if !r.Timestamp.After(cutoff) {
			reference = r
			fallback = false
			break
		}
	}
	return FuelChange{
		FuelType:    fuel,
		Current:     current.Price,
		Reference:   reference.Price,
		CurrentAt:   current.Timestamp,
		ReferenceAt: reference.Timestamp,
		Absolute:    current.Price.Sub(reference.Price),
		Percent:     percentChange(current.Price, reference.Price),
		Fallback:    fallback,
	}
}

func average(record *ChangeRecord) {
	var (
		sumCurrent, sumReference, sumAbs, sumPct decimal.Decimal
		pctCount                                 int64
	)
	for _, c := range record.FuelTypes {
		sumCurrent = sumCurrent.Add(c.Current)
		sumReference = sumReference.Add(c.Reference)
		sumAbs = sumAbs.Add(c.Absolute)
		if c.Percent.Valid {
			sumPct = sumPct.Add(c.Percent.Decimal)
			pctCount++
		}
	}
	n := decimal.NewFromInt(int64(len(record.FuelTypes)))
	record.Current = sumCurrent.Div(n)
	record.Reference = sumReference.Div(n)
	record.AbsoluteDelta = sumAbs.Div(n)
	if pctCount > 0 {
		record.PercentDelta = decimal.NewNullDecimal(sumPct.Div(decimal.NewFromInt(pctCount)))
	}
}
