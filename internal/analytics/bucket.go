// Package analytics turns the observation log into snapshots, calendar buckets,
// trend lines and windowed price changes. Every function is pure.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/storage"
)

// ErrUnknownMode is returned for a bucketing mode other than day, week or month.
var ErrUnknownMode = errors.New("analytics: unknown bucketing mode")

// Mode selects the calendar period of a bucket.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// changeThreshold is the smallest price movement treated as a new value.
var changeThreshold = decimal.New(1, -4)

// ParseMode resolves a textual mode.
func ParseMode(v string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(v))); m {
	case ModeDay, ModeWeek, ModeMonth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, v)
	}
}

// BucketOptions parameterises BucketObservations.
type BucketOptions struct {
	Mode          Mode
	OffsetMinutes int
	// Cutoff drops observations before it. Zero keeps everything.
	Cutoff time.Time
}

// PricePoint is one price at one instant.
type PricePoint struct {
	At    time.Time
	Price decimal.Decimal
}

// FuelStats aggregates one fuel type within one bucket.
type FuelStats struct {
	Last    decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
	Samples int
	// History holds distinct consecutive prices, newest first.
	History []PricePoint
}

// Bucket is a calendar-period aggregate.
type Bucket struct {
	Key     string
	Instant time.Time
	Fuels   map[string]FuelStats
}

// Zone returns the fixed zone used for calendar keys.
func Zone(offsetMinutes int) *time.Location {
	return time.FixedZone(zoneName(offsetMinutes), offsetMinutes*60)
}

func zoneName(offsetMinutes int) string {
	sign := '+'
	if offsetMinutes < 0 {
		sign = '-'
		offsetMinutes = -offsetMinutes
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offsetMinutes/60, offsetMinutes%60)
}

// PeriodKey derives the canonical key of ts in loc.
func PeriodKey(mode Mode, ts time.Time, loc *time.Location) (string, error) {
	local := ts.In(loc)
	switch mode {
	case ModeDay:
		return local.Format("2006-01-02"), nil
	case ModeWeek:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case ModeMonth:
		return local.Format("01.2006"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// PeriodInstant maps a canonical key to its representative instant. The result
// depends only on key and mode.
func PeriodInstant(mode Mode, key string, loc *time.Location) (time.Time, error) {
	switch mode {
	case ModeDay:
		d, err := time.ParseInLocation("2006-01-02", key, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse day key %q: %w", key, err)
		}
		return d.Add(12 * time.Hour), nil
	case ModeWeek:
		var year, week int
		if _, err := fmt.Sscanf(key, "%d-W%d", &year, &week); err != nil {
			return time.Time{}, fmt.Errorf("parse week key %q: %w", key, err)
		}
		if week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("parse week key %q: week out of range", key)
		}
		return isoWeekMonday(year, week, loc), nil
	case ModeMonth:
		m, err := time.ParseInLocation("01.2006", key, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse month key %q: %w", key, err)
		}
		return time.Date(m.Year(), m.Month(), 15, 12, 0, 0, 0, loc), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// isoWeekMonday returns Monday 00:00 of the ISO week. January 4th always
// falls in week 1.
func isoWeekMonday(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	back := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -back+(week-1)*7)
}

// BucketObservations groups observations into calendar buckets sorted
// ascending by representative instant.
func BucketObservations(obs []storage.Observation, opts BucketOptions) ([]Bucket, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	loc := Zone(opts.OffsetMinutes)

	groups := make(map[string]map[string][]storage.Observation)
	for _, o := range obs {
		if !opts.Cutoff.IsZero() && o.Timestamp.Before(opts.Cutoff) {
			continue
		}
		key, err := PeriodKey(opts.Mode, o.Timestamp, loc)
		if err != nil {
			return nil, err
		}
		fuels, ok := groups[key]
		if !ok {
			fuels = make(map[string][]storage.Observation)
			groups[key] = fuels
		}
		fuels[o.FuelType] = append(fuels[o.FuelType], o)
	}

	buckets := make([]Bucket, 0, len(groups))
	for key, fuels := range groups {
		instant, err := PeriodInstant(opts.Mode, key, loc)
		if err != nil {
			return nil, err
		}
		b := Bucket{Key: key, Instant: instant, Fuels: make(map[string]FuelStats, len(fuels))}
		for fuel, rows := range fuels {
			b.Fuels[fuel] = summarise(rows)
		}
		buckets = append(buckets, b)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Instant.Before(buckets[j].Instant)
	})
	return buckets, nil
}

func summarise(rows []storage.Observation) FuelStats {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	stats := FuelStats{
		Last:    rows[len(rows)-1].Price,
		Min:     rows[0].Price,
		Max:     rows[0].Price,
		Samples: len(rows),
	}
	history := make([]PricePoint, 0, len(rows))
	for i, r := range rows {
		if r.Price.LessThan(stats.Min) {
			stats.Min = r.Price
		}
		if r.Price.GreaterThan(stats.Max) {
			stats.Max = r.Price
		}
		if i == 0 || Changed(history[len(history)-1].Price, r.Price) {
			history = append(history, PricePoint{At: r.Timestamp, Price: r.Price})
		}
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	stats.History = history
	return stats
}

// Changed reports whether two prices differ by more than the noise threshold.
func Changed(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(changeThreshold)
}

// FuelTypes lists every fuel type present in buckets, sorted.
func FuelTypes(buckets []Bucket) []string {
	seen := make(map[string]struct{})
	for _, b := range buckets {
		for fuel := range b.Fuels {
			seen[fuel] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for fuel := range seen {
		out = append(out, fuel)
	}
	sort.Strings(out)
	return out
}
