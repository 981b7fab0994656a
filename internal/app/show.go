package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/httpapi"
)

// Show prints the latest snapshot followed by the windowed change table.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	svc, store, err := a.newService(ctx, nil, nil, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := svc.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap) == 0 {
		fmt.Fprintln(a.out(), "no observations recorded yet")
		return nil
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Snapshot %s\n", snap[0].Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintln(writer, "Fuel\tPrice (EUR)\tStations")
	for _, o := range snap {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			sanitizeInline(o.FuelType),
			formatDecimal(o.Price, 3),
			sanitizeInline(strings.Join(o.Stations, "; ")),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fuelTypes, err := svc.ResolveFuelTypes(ctx, opts.FuelTypes)
	if err != nil {
		return err
	}
	records, ok, err := svc.Changes(ctx, fuelTypes, opts.Windows, svc.Now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	fmt.Fprintln(a.out())
	writer = tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Window\tCurrent\tReference\tChange\tChange%\tFallback")
	for _, w := range sortedWindows(records) {
		rec := records[w]
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			httpapi.FormatWindow(w),
			formatDecimal(rec.Current, 3),
			formatDecimal(rec.Reference, 3),
			formatSigned(rec.AbsoluteDelta, 3),
			formatPercent(rec.PercentDelta),
			fallbackTypes(rec),
		)
	}
	return writer.Flush()
}

func sortedWindows(records map[time.Duration]analytics.ChangeRecord) []time.Duration {
	out := make([]time.Duration, 0, len(records))
	for w := range records {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func fallbackTypes(rec analytics.ChangeRecord) string {
	var names []string
	for _, c := range rec.FuelTypes {
		if c.Fallback {
			names = append(names, c.FuelType)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func formatSigned(d decimal.Decimal, places int32) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}

func formatPercent(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return formatSigned(d.Decimal, 2) + "%"
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
