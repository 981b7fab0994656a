package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedObservation rejects rows that must never reach the analytics core.
var ErrMalformedObservation = errors.New("storage: malformed observation")

// Observation is one scraped price for a single fuel type. Rows written by the
// same scrape cycle share a Timestamp.
type Observation struct {
	ID        int64
	FuelType  string
	Price     decimal.Decimal
	Stations  []string
	Timestamp time.Time
}

// Filter narrows ListObservations. Zero values disable a clause.
type Filter struct {
	FuelType string
	Since    time.Time
}

// Validate rejects observations that cannot be stored.
func (o Observation) Validate() error {
	if o.FuelType == "" {
		return fmt.Errorf("%w: empty fuel type", ErrMalformedObservation)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s for %s", ErrMalformedObservation, o.Price, o.FuelType)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp for %s", ErrMalformedObservation, o.FuelType)
	}
	return nil
}

func (f Filter) matches(o Observation) bool {
	if f.FuelType != "" && o.FuelType != f.FuelType {
		return false
	}
	if !f.Since.IsZero() && o.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func validateAll(obs []Observation) error {
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func cloneStations(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
