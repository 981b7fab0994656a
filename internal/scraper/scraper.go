// Package scraper reads the public fuel price page.
package scraper

import (
	"context"

	"github.com/shopspring/decimal"
)

// Price is one fuel type row parsed from the price page.
type Price struct {
	FuelType string
	Price    decimal.Decimal
	Stations []string
}

// PriceScraper retrieves the current price list.
type PriceScraper interface {
	Scrape(ctx context.Context) ([]Price, error)
}
