package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
)

// Scrape runs a single ingestion cycle and prints what was recorded.
func (a *App) Scrape(ctx context.Context) error {
	svc, store, err := a.newService(ctx, nil, a.newScraper(), nil)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := svc.ScrapeOnce(ctx, svc.Now())
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(a.out(), "another instance holds the scrape lock; nothing recorded")
		return nil
	}
	if len(res.Observations) == 0 {
		fmt.Fprintln(a.out(), "price page listed no known fuel types")
		return nil
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fuel\tPrice (EUR)\tChange")
	changes := make(map[string]string, len(res.Changes))
	for _, d := range res.Changes {
		if d.Added {
			changes[d.FuelType] = "new"
			continue
		}
		changes[d.FuelType] = formatSigned(d.Delta, 3) + " (" + formatPercent(d.Percent) + ")"
	}
	for _, o := range res.Observations {
		change, ok := changes[o.FuelType]
		if !ok {
			change = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", sanitizeInline(o.FuelType), formatDecimal(o.Price, 3), change)
	}
	return writer.Flush()
}

// Reset truncates the observation log. confirm guards against accidents.
func (a *App) Reset(ctx context.Context, confirm bool) error {
	if !confirm {
		return errors.New("refusing to reset without confirmation (pass --yes)")
	}
	svc, store, err := a.newService(ctx, nil, nil, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := svc.Count(ctx)
	if err != nil {
		return err
	}
	if err := svc.Reset(ctx); err != nil {
		return fmt.Errorf("reset observations: %w", err)
	}
	a.Logger.Warn().Int64("removed", count).Msg("observation log truncated")
	fmt.Fprintf(a.out(), "removed %d observations\n", count)
	return nil
}
