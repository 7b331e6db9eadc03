package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpenData(apiURL string) *OpenData {
	return &OpenData{
		apiURL: apiURL,
		client: &http.Client{Timeout: 5 * time.Second},
		cached: make(map[types.TariffVariant]openDataCacheEntry),
	}
}

func TestOpenDataFetch(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_count":2,"results":[
			{"offre":"CPC-D","datedebut":"2025-12-15T16:00:00-05:00","datefin":"2025-12-15T20:00:00-05:00","plagehoraire":"PM"},
			{"offre":"CPC-D","datedebut":"2025-12-16 06:00","datefin":"2025-12-16 10:00","plagehoraire":"AM"}
		]}`))
	}))
	defer srv.Close()

	o := testOpenData(srv.URL)
	from := time.Date(2025, 12, 15, 0, 0, 0, 0, peaks.Location())
	to := time.Date(2025, 12, 17, 0, 0, 0, 0, peaks.Location())
	windows, err := o.Fetch(context.Background(), types.TariffWinterCredit, from, to)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	assert.Equal(t, []string{`offre:"CPC-D"`}, gotQuery["refine"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
	assert.Equal(t, []string{"America/Toronto"}, gotQuery["timezone"])

	assert.Equal(t, types.TariffWinterCredit, windows[0].Variant)
	assert.True(t, windows[0].Start.Equal(time.Date(2025, 12, 15, 16, 0, 0, 0, peaks.Location())))
	assert.True(t, windows[0].End.Equal(time.Date(2025, 12, 15, 20, 0, 0, 0, peaks.Location())))
	assert.True(t, windows[1].Start.Equal(time.Date(2025, 12, 16, 6, 0, 0, 0, peaks.Location())))
}

func TestOpenDataFetchCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	o := testOpenData(srv.URL)
	from := time.Now()
	to := from.AddDate(0, 0, 2)
	_, err := o.Fetch(context.Background(), types.TariffFlex, from, to)
	require.NoError(t, err)
	_, err = o.Fetch(context.Background(), types.TariffFlex, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpenDataFetchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := testOpenData(srv.URL)
	_, err := o.Fetch(context.Background(), types.TariffWinterCredit, time.Now(), time.Now().AddDate(0, 0, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchUnavailable)
}

func TestOpenDataFetchSkipsBadRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"offre":"CPC-D","datedebut":"not a date","datefin":"2025-12-15T20:00:00-05:00"},
			{"offre":"CPC-D","datedebut":"2025-12-15T16:00:00-05:00","datefin":"2025-12-15T20:00:00-05:00"}
		]}`))
	}))
	defer srv.Close()

	o := testOpenData(srv.URL)
	windows, err := o.Fetch(context.Background(), types.TariffWinterCredit, time.Now(), time.Now().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}
