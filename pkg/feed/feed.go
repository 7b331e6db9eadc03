package feed

import (
	"context"
	"errors"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// ErrFetchUnavailable indicates the public feed could not be reached or
// returned something unparseable. Callers should degrade to the last known
// announcement set rather than abort the cycle.
var ErrFetchUnavailable = errors.New("peak announcement feed unavailable")

// Fetcher yields announced critical windows for a tariff variant within a
// date range. Implementations must return timezone-aware instants in the
// utility's local zone.
type Fetcher interface {
	Fetch(ctx context.Context, variant types.TariffVariant, from, to time.Time) ([]types.AnnouncedWindow, error)
}

// Configured sets up the feed fetcher based on flags.
func Configured() Fetcher {
	return configuredOpenData()
}
