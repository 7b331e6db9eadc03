// Package portal defines the customer-portal collaborator. The portal is
// polled hourly for account standing; authentication and billing retrieval
// live behind this interface rather than in this process.
package portal

import (
	"context"
	"errors"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// ErrPortalUnavailable is returned when the portal cannot be reached.
var ErrPortalUnavailable = errors.New("portal unavailable")

// AccountSnapshot is the per-contract view the portal reports.
type AccountSnapshot struct {
	ContractID      string              `json:"contractId"`
	Variant         types.TariffVariant `json:"variant"`
	WinterCreditCAD float64             `json:"winterCreditCad"`
	ProjectedCAD    float64             `json:"projectedCad"`
	FetchedAt       time.Time           `json:"fetchedAt"`
}

// Client fetches account snapshots from the customer portal.
type Client interface {
	AccountSnapshot(ctx context.Context, contractID string) (AccountSnapshot, error)
}
