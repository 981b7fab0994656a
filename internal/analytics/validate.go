package analytics

import (
	"errors"
	"fmt"

	"fuel-price-tracker/internal/storage"
)

// ErrUnordered flags a store that returned rows out of timestamp order.
var ErrUnordered = errors.New("analytics: observations not in ascending order")

// CheckOrdered verifies obs is ascending by timestamp.
func CheckOrdered(obs []storage.Observation) error {
	for i := 1; i < len(obs); i++ {
		if obs[i].Timestamp.Before(obs[i-1].Timestamp) {
			return fmt.Errorf("%w: row %d (%s) precedes row %d (%s)",
				ErrUnordered, i, obs[i].Timestamp, i-1, obs[i-1].Timestamp)
		}
	}
	return nil
}
