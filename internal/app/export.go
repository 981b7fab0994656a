package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/service"
)

// Export renders bucketed prices and their trend lines as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	svc, store, err := a.newService(ctx, nil, nil, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	mode, buckets, err := a.exportBuckets(ctx, svc, opts)
	if err != nil {
		return err
	}
	if len(buckets) == 0 {
		a.Logger.Info().Msg("no observations found for export window")
		return nil
	}

	fuelTypes := analytics.FuelTypes(buckets)
	if len(opts.FuelTypes) > 0 {
		if fuelTypes, err = svc.ResolveFuelTypes(ctx, opts.FuelTypes); err != nil {
			return err
		}
	}
	trends := svc.Trends(buckets, fuelTypes)
	a.Logger.Info().Str("mode", string(mode)).Int("buckets", len(buckets)).Int("fuel_types", len(fuelTypes)).Msg("exporting buckets")

	if opts.CSVPath != "" {
		if err := writeBucketsCSV(opts.CSVPath, mode, buckets, fuelTypes, trends); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		size := chartSize{Width: a.Config.Export.Width, Height: a.Config.Export.Height}
		if err := writeBucketsPNG(opts.PNGPath, size, buckets, fuelTypes, trends); err != nil {
			return err
		}
	}

	return nil
}

// exportBuckets uses an explicit mode when given, otherwise the rolling
// interval table.
func (a *App) exportBuckets(ctx context.Context, svc *service.Service, opts ExportOptions) (analytics.Mode, []analytics.Bucket, error) {
	if opts.Mode != "" {
		mode, err := analytics.ParseMode(opts.Mode)
		if err != nil {
			return "", nil, err
		}
		bo := analytics.BucketOptions{Mode: mode, OffsetMinutes: svc.OffsetMinutes()}
		if opts.Cutoff != nil {
			bo.Cutoff = opts.Cutoff.UTC()
		}
		buckets, err := svc.Buckets(ctx, bo)
		return mode, buckets, err
	}

	interval, err := analytics.ParseInterval(opts.Interval)
	if err != nil {
		return "", nil, err
	}
	buckets, bo, err := svc.RollingBuckets(ctx, interval, analytics.ParseDevice(opts.Device), svc.Now())
	return bo.Mode, buckets, err
}

func writeBucketsCSV(path string, mode analytics.Mode, buckets []analytics.Bucket, fuelTypes []string, trends map[string]analytics.TrendLine) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_key", "label", "instant", "fuel_type", "last", "min", "max", "samples", "trend"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, b := range buckets {
		for _, fuel := range fuelTypes {
			stats, ok := b.Fuels[fuel]
			if !ok {
				continue
			}
			trend := ""
			if line, ok := trends[fuel]; ok && line.Values[i].Valid {
				trend = line.Values[i].Decimal.StringFixed(3)
			}
			record := []string{
				b.Key,
				analytics.Label(mode, b.Key),
				b.Instant.UTC().Format(time.RFC3339),
				fuel,
				stats.Last.StringFixed(3),
				stats.Min.StringFixed(3),
				stats.Max.StringFixed(3),
				strconv.Itoa(stats.Samples),
				trend,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

type chartSize struct {
	Width  int
	Height int
}

func writeBucketsPNG(path string, size chartSize, buckets []analytics.Bucket, fuelTypes []string, trends map[string]analytics.TrendLine) error {
	if size.Width <= 0 {
		size.Width = 1280
	}
	if size.Height <= 0 {
		size.Height = 720
	}

	series := make([]chart.Series, 0, 2*len(fuelTypes))
	for idx, fuel := range fuelTypes {
		color := chart.GetDefaultColor(idx)

		var x []time.Time
		var y []float64
		for _, b := range buckets {
			if stats, ok := b.Fuels[fuel]; ok {
				x = append(x, b.Instant)
				y = append(y, stats.Last.InexactFloat64())
			}
		}
		if len(x) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    fuel,
			XValues: x,
			YValues: y,
			Style:   chart.Style{StrokeColor: color, StrokeWidth: 2},
		})

		line, ok := trends[fuel]
		if !ok {
			continue
		}
		var tx []time.Time
		var ty []float64
		for i, v := range line.Values {
			if v.Valid {
				tx = append(tx, buckets[i].Instant)
				ty = append(ty, v.Decimal.InexactFloat64())
			}
		}
		series = append(series, chart.TimeSeries{
			Name:    fuel + " trend",
			XValues: tx,
			YValues: ty,
			Style:   chart.Style{StrokeColor: color, StrokeWidth: 1, StrokeDashArray: []float64{5, 5}},
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("render chart: need at least two buckets per fuel type, have %d buckets", len(buckets))
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  size.Width,
		Height: size.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (EUR/l)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
