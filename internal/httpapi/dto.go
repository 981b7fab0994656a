package httpapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/storage"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type observationDTO struct {
	FuelType  string      `json:"fuel_type"`
	Price     json.Number `json:"price"`
	Stations  []string    `json:"stations"`
	Timestamp string      `json:"timestamp"`
}

type latestResponse struct {
	Available bool             `json:"available"`
	Timestamp *string          `json:"timestamp"`
	Prices    []observationDTO `json:"prices"`
}

type historyResponse struct {
	FuelType     string           `json:"fuel_type,omitempty"`
	Observations []observationDTO `json:"observations"`
}

type pointDTO struct {
	At    string      `json:"at"`
	Price json.Number `json:"price"`
}

type fuelStatsDTO struct {
	Last    json.Number `json:"last"`
	Min     json.Number `json:"min"`
	Max     json.Number `json:"max"`
	Samples int         `json:"samples"`
	History []pointDTO  `json:"history"`
}

type bucketDTO struct {
	Key     string                  `json:"key"`
	Label   string                  `json:"label"`
	Instant string                  `json:"instant"`
	Fuels   map[string]fuelStatsDTO `json:"fuels"`
}

type trendDTO struct {
	Slope     json.Number    `json:"slope"`
	Intercept json.Number    `json:"intercept"`
	Points    int            `json:"points"`
	Values    []*json.Number `json:"values"`
}

type bucketsResponse struct {
	Mode          string              `json:"mode"`
	Interval      string              `json:"interval,omitempty"`
	Device        string              `json:"device,omitempty"`
	OffsetMinutes int                 `json:"offset_minutes"`
	Cutoff        *string             `json:"cutoff"`
	FuelTypes     []string            `json:"fuel_types"`
	Buckets       []bucketDTO         `json:"buckets"`
	Trends        map[string]trendDTO `json:"trends"`
}

type fuelChangeDTO struct {
	FuelType    string       `json:"fuel_type"`
	Current     json.Number  `json:"current"`
	Reference   json.Number  `json:"reference"`
	CurrentAt   string       `json:"current_at"`
	ReferenceAt string       `json:"reference_at"`
	Absolute    json.Number  `json:"absolute_delta"`
	Percent     *json.Number `json:"percent_delta"`
	Fallback    bool         `json:"fallback"`
}

type changeDTO struct {
	Window        string          `json:"window"`
	Current       json.Number     `json:"current"`
	Reference     json.Number     `json:"reference"`
	AbsoluteDelta json.Number     `json:"absolute_delta"`
	PercentDelta  *json.Number    `json:"percent_delta"`
	FuelTypes     []fuelChangeDTO `json:"fuel_types"`
}

type changesResponse struct {
	Available bool        `json:"available"`
	FuelTypes []string    `json:"fuel_types"`
	Windows   []changeDTO `json:"windows"`
}

type priceDeltaDTO struct {
	FuelType string       `json:"fuel_type"`
	Previous *json.Number `json:"previous"`
	Current  json.Number  `json:"current"`
	Delta    *json.Number `json:"delta"`
	Percent  *json.Number `json:"percent"`
	Added    bool         `json:"added"`
}

type scrapeResponse struct {
	At           string           `json:"at"`
	Skipped      bool             `json:"skipped"`
	Observations []observationDTO `json:"observations"`
	Changes      []priceDeltaDTO  `json:"changes"`
}

type healthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	Observations int64   `json:"observations"`
	Latest       *string `json:"latest"`
}

func priceJSON(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(3))
}

func percentJSON(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.StringFixed(2))
	return &n
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := formatTime(t)
	return &v
}

func toObservationDTOs(obs []storage.Observation) []observationDTO {
	out := make([]observationDTO, 0, len(obs))
	for _, o := range obs {
		stations := o.Stations
		if stations == nil {
			stations = []string{}
		}
		out = append(out, observationDTO{
			FuelType:  o.FuelType,
			Price:     priceJSON(o.Price),
			Stations:  stations,
			Timestamp: formatTime(o.Timestamp),
		})
	}
	return out
}

func toLatestResponse(snap []storage.Observation) latestResponse {
	resp := latestResponse{Available: len(snap) > 0, Prices: toObservationDTOs(snap)}
	if len(snap) > 0 {
		resp.Timestamp = optionalTime(snap[0].Timestamp)
	}
	return resp
}

func toBucketDTOs(mode analytics.Mode, buckets []analytics.Bucket, fuels map[string]bool) []bucketDTO {
	out := make([]bucketDTO, 0, len(buckets))
	for _, b := range buckets {
		dto := bucketDTO{
			Key:     b.Key,
			Label:   analytics.Label(mode, b.Key),
			Instant: formatTime(b.Instant),
			Fuels:   make(map[string]fuelStatsDTO, len(b.Fuels)),
		}
		for fuel, stats := range b.Fuels {
			if fuels != nil && !fuels[fuel] {
				continue
			}
			history := make([]pointDTO, 0, len(stats.History))
			for _, p := range stats.History {
				history = append(history, pointDTO{At: formatTime(p.At), Price: priceJSON(p.Price)})
			}
			dto.Fuels[fuel] = fuelStatsDTO{
				Last:    priceJSON(stats.Last),
				Min:     priceJSON(stats.Min),
				Max:     priceJSON(stats.Max),
				Samples: stats.Samples,
				History: history,
			}
		}
		out = append(out, dto)
	}
	return out
}

func toTrendDTOs(lines map[string]analytics.TrendLine) map[string]trendDTO {
	out := make(map[string]trendDTO, len(lines))
	for fuel, line := range lines {
		values := make([]*json.Number, len(line.Values))
		for i, v := range line.Values {
			if !v.Valid {
				continue
			}
			n := priceJSON(v.Decimal)
			values[i] = &n
		}
		out[fuel] = trendDTO{
			Slope:     json.Number(line.Slope.StringFixed(6)),
			Intercept: json.Number(line.Intercept.StringFixed(6)),
			Points:    line.Points,
			Values:    values,
		}
	}
	return out
}

func toChangeDTOs(records map[time.Duration]analytics.ChangeRecord) []changeDTO {
	windows := make([]time.Duration, 0, len(records))
	for w := range records {
		windows = append(windows, w)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })

	out := make([]changeDTO, 0, len(windows))
	for _, w := range windows {
		rec := records[w]
		fuels := make([]fuelChangeDTO, 0, len(rec.FuelTypes))
		for _, c := range rec.FuelTypes {
			fuels = append(fuels, fuelChangeDTO{
				FuelType:    c.FuelType,
				Current:     priceJSON(c.Current),
				Reference:   priceJSON(c.Reference),
				CurrentAt:   formatTime(c.CurrentAt),
				ReferenceAt: formatTime(c.ReferenceAt),
				Absolute:    priceJSON(c.Absolute),
				Percent:     percentJSON(c.Percent),
				Fallback:    c.Fallback,
			})
		}
		out = append(out, changeDTO{
			Window:        FormatWindow(w),
			Current:       priceJSON(rec.Current),
			Reference:     priceJSON(rec.Reference),
			AbsoluteDelta: priceJSON(rec.AbsoluteDelta),
			PercentDelta:  percentJSON(rec.PercentDelta),
			FuelTypes:     fuels,
		})
	}
	return out
}

func toDeltaDTOs(deltas []analytics.PriceDelta) []priceDeltaDTO {
	out := make([]priceDeltaDTO, 0, len(deltas))
	for _, d := range deltas {
		dto := priceDeltaDTO{FuelType: d.FuelType, Current: priceJSON(d.Current), Added: d.Added}
		if !d.Added {
			prev, delta := priceJSON(d.Previous), priceJSON(d.Delta)
			dto.Previous, dto.Delta = &prev, &delta
			dto.Percent = percentJSON(d.Percent)
		}
		out = append(out, dto)
	}
	return out
}

// ParseWindow accepts "7d" style day counts as well as Go durations.
func ParseWindow(v string) (time.Duration, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", v)
	}
	return d, nil
}

// FormatWindow renders 24h as "24h" and whole multiples of a day as "Nd".
func FormatWindow(d time.Duration) string {
	day := 24 * time.Hour
	switch {
	case d == day:
		return "24h"
	case d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return d.String()
	}
}
