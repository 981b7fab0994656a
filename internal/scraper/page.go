package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxErrorBody     = 512
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	leadingNumber = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?`)
)

// Options parameterise the page scraper.
type Options struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	FuelTypes []string
}

// Page scrapes the price table of the configured page.
type Page struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client
}

// New constructs a page scraper.
func New(opts Options, logger zerolog.Logger) *Page {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Page{
		opts:   opts,
		logger: logger.With().Str("component", "scraper").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Scrape fetches the page and parses the price table.
func (p *Page) Scrape(ctx context.Context) ([]Price, error) {
	if p.opts.URL == "" {
		return nil, errors.New("scraper url not configured")
	}
	if len(p.opts.FuelTypes) == 0 {
		return nil, errors.New("scraper fuel type catalog is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch price page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(body) > 0 {
			return nil, fmt.Errorf("price page error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("price page error (%d)", resp.StatusCode)
	}

	prices, err := ParsePage(resp.Body, p.opts.FuelTypes)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		p.logger.Warn().Str("url", p.opts.URL).Msg("no fuel data found, check the page structure")
		return prices, nil
	}
	for _, price := range prices {
		p.logger.Debug().
			Str("fuel_type", price.FuelType).
			Str("price", price.Price.StringFixed(3)).
			Int("stations", len(price.Stations)).
			Msg("parsed fuel price")
	}
	return prices, nil
}

// ParsePage extracts catalog fuel types from every table row with at least
// three cells: name, price and comma-separated station addresses.
func ParsePage(r io.Reader, catalog []string) ([]Price, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse price page: %w", err)
	}

	seen := make(map[string]bool)
	prices := make([]Price, 0, len(catalog))
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		fuel, ok := matchFuel(normaliseText(cells.Eq(0).Text()), catalog)
		if !ok || seen[fuel] {
			return
		}
		price, ok := parsePrice(cells.Eq(1).Text())
		if !ok {
			return
		}
		seen[fuel] = true
		prices = append(prices, Price{
			FuelType: fuel,
			Price:    price,
			Stations: splitAddresses(normaliseText(cells.Eq(2).Text())),
		})
	})
	return prices, nil
}

func normaliseText(v string) string {
	v = strings.ReplaceAll(v, "\u00a0", " ")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(v, " "))
}

// matchFuel accepts an exact name or containment in either direction. The
// longest catalog entry wins so "Neste Futura D" does not shadow a longer grade.
func matchFuel(name string, catalog []string) (string, bool) {
	if name == "" {
		return "", false
	}
	best := ""
	for _, fuel := range catalog {
		if fuel == name {
			return fuel, true
		}
		if strings.Contains(name, fuel) || strings.Contains(fuel, name) {
			if len(fuel) > len(best) {
				best = fuel
			}
		}
	}
	return best, best != ""
}

func parsePrice(raw string) (decimal.Decimal, bool) {
	v := strings.Replace(normaliseText(raw), ",", ".", 1)
	num := leadingNumber.FindString(v)
	if num == "" {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func splitAddresses(v string) []string {
	stations := []string{}
	for _, part := range strings.Split(v, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			stations = append(stations, addr)
		}
	}
	return stations
}

var _ PriceScraper = (*Page)(nil)
