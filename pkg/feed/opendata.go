package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/lit-af/hydroqc-ha/pkg/common"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// offerCodes maps tariff variants to the offer codes used by the
// Hydro-Québec open data catalog.
var offerCodes = map[types.TariffVariant]string{
	types.TariffWinterCredit: "CPC-D",
	types.TariffFlex:         "TPC-DPC",
}

const defaultOpenDataURL = "https://donnees.hydroquebec.com/api/explore/v2.1/catalog/datasets/evenements-pointe/records"

// OpenData fetches announced peak events from the Hydro-Québec public
// Opendatasoft API. Results are cached briefly per variant since the feed
// only changes around midday.
type OpenData struct {
	apiURL string
	client *http.Client

	mu     sync.Mutex
	cached map[types.TariffVariant]openDataCacheEntry
}

type openDataCacheEntry struct {
	fetchedAt time.Time
	windows   []types.AnnouncedWindow
}

// configuredOpenData sets up flags for the open data client and returns
// the instance.
func configuredOpenData() *OpenData {
	o := &OpenData{
		client: common.HTTPClient(30 * time.Second),
		cached: make(map[types.TariffVariant]openDataCacheEntry),
	}
	apiURL := lflag.String("opendata-api-url", defaultOpenDataURL, "URL for the Hydro-Québec peak events open data API")

	lflag.Do(func() {
		o.apiURL = *apiURL
		if _, err := url.Parse(o.apiURL); err != nil {
			panic(fmt.Sprintf("invalid opendata-api-url (%s): %v", o.apiURL, err))
		}
	})

	return o
}

// openDataRecord is one row of the evenements-pointe dataset. Field names
// are lowercase in the API.
type openDataRecord struct {
	Offre        string `json:"offre"`
	DateDebut    string `json:"datedebut"`
	DateFin      string `json:"datefin"`
	PlageHoraire string `json:"plagehoraire"`
}

type openDataResponse struct {
	Results []openDataRecord `json:"results"`
}

// Fetch retrieves announced windows for a variant between from and to
// (calendar dates, inclusive). Rows with unparseable dates are skipped
// individually rather than failing the batch.
func (o *OpenData) Fetch(ctx context.Context, variant types.TariffVariant, from, to time.Time) ([]types.AnnouncedWindow, error) {
	offer, ok := offerCodes[variant]
	if !ok {
		return nil, fmt.Errorf("no open data offer code for variant %s", variant)
	}

	now := time.Now().In(peaks.Location())

	o.mu.Lock()
	// the feed publishes at most a few times a day; a 5 minute block cache
	// keeps overlapping ticks from refetching
	if entry, exists := o.cached[variant]; exists && now.Sub(entry.fetchedAt) < 5*time.Minute {
		windows := entry.windows
		o.mu.Unlock()
		return windows, nil
	}
	o.mu.Unlock()

	u, err := url.Parse(o.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	from = from.In(peaks.Location())
	to = to.In(peaks.Location())
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("timezone", "America/Toronto")
	params.Set("refine", fmt.Sprintf("offre:%q", offer))
	params.Set("where", fmt.Sprintf("datedebut>='%s' and datedebut<='%s'",
		from.Format("2006-01-02"), to.AddDate(0, 0, 1).Format("2006-01-02")))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching peak announcements", slog.String("url", u.String()), slog.String("offer", offer))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: api returned status %d", ErrFetchUnavailable, resp.StatusCode)
	}

	var data openDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrFetchUnavailable, err)
	}

	windows := make([]types.AnnouncedWindow, 0, len(data.Results))
	for _, rec := range data.Results {
		start, err := parseFeedTime(rec.DateDebut)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse announcement start", slog.String("value", rec.DateDebut), slog.Any("error", err))
			continue
		}
		end, err := parseFeedTime(rec.DateFin)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse announcement end", slog.String("value", rec.DateFin), slog.Any("error", err))
			continue
		}
		windows = append(windows, types.AnnouncedWindow{
			Variant: variant,
			Start:   start,
			End:     end,
		})
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched peak announcements",
		slog.String("variant", string(variant)),
		slog.Int("rows", len(data.Results)),
		slog.Int("windows", len(windows)),
	)

	o.mu.Lock()
	o.cached[variant] = openDataCacheEntry{fetchedAt: now, windows: windows}
	o.mu.Unlock()

	return windows, nil
}

// parseFeedTime accepts both formats the dataset has been observed to use:
// ISO 8601 with offset and the simple "2006-01-02 15:04" local form.
func parseFeedTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(peaks.Location()), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, peaks.Location())
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
