package peaks

import (
	"fmt"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/types"
)

var (
	// Hydro-Québec uses Eastern Time
	hqLocation = func() *time.Location {
		loc, err := time.LoadLocation("America/Toronto")
		if err != nil {
			panic(fmt.Errorf("failed to load eastern time location: %w", err))
		}
		return loc
	}()
)

// Location returns the fixed local zone used for all peak arithmetic.
func Location() *time.Location {
	return hqLocation
}

// IsWinterSeason reports whether d falls within the winter event season,
// Dec 1 through Mar 31 inclusive. Only the month and day of d matter, so it
// is correct across the Dec 31/Jan 1 year boundary and on Feb 29.
func IsWinterSeason(d time.Time) bool {
	_, m, day := d.Date()
	if m == time.December {
		return day >= 1
	}
	return m <= time.March
}

// SeasonBounds returns the winter season containing d, or the next upcoming
// season when d is off-season (Apr-Nov). This lets schedule generation
// always answer "bounds of the relevant season" even when called in summer.
func SeasonBounds(d time.Time) types.SeasonWindow {
	year := d.Year()
	switch {
	case d.Month() == time.December:
		// season starts this year
	case d.Month() <= time.March:
		// season started the previous December
		year--
	default:
		// off-season: the upcoming season starts this December
	}
	return types.SeasonWindow{
		Year:  year,
		Start: time.Date(year, time.December, 1, 0, 0, 0, 0, hqLocation),
		End:   time.Date(year+1, time.March, 31, 0, 0, 0, 0, hqLocation),
	}
}
