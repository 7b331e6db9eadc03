package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/metrics"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// Reconciler diffs a desired set of peak windows against the stored
// calendar events and applies the minimum set of mutations.
type Reconciler struct {
	backend    Backend
	contractID string
}

// NewReconciler returns a Reconciler writing events for the given contract.
func NewReconciler(backend Backend, contractID string) *Reconciler {
	return &Reconciler{
		backend:    backend,
		contractID: contractID,
	}
}

// Reconcile brings the stored events for a variant in line with desired.
//
// Each desired window maps to a record keyed by a UID derived from its
// identity, so re-announcing or re-syncing the same window always hits the
// same record. Records are created when missing, updated in place when the
// content signature differs, and skipped when it matches.
//
// Deletions are conservative: only records this reconciler itself wrote,
// with a start inside horizon, are removed when absent from desired.
// Externally created events and far-future announcements are left alone.
// If the store cannot be listed the pass aborts with ErrStoreUnavailable
// before any mutation, so a dead store never looks like an empty desired
// set.
func (r *Reconciler) Reconcile(ctx context.Context, variant types.TariffVariant, desired []types.PeakWindow, horizon Horizon) (types.ReconcileResult, error) {
	var res types.ReconcileResult

	existing, err := r.backend.List(ctx, r.contractID, variant)
	if err != nil {
		return res, fmt.Errorf("listing events for %s: %w", variant, err)
	}
	byUID := make(map[string]types.CalendarRecord, len(existing))
	for _, rec := range existing {
		byUID[rec.UID] = rec
	}

	desiredUIDs := make(map[string]bool, len(desired))
	var firstErr error
	for _, w := range desired {
		rec := RecordFor(r.contractID, w)
		desiredUIDs[rec.UID] = true

		cur, exists := byUID[rec.UID]
		switch {
		case !exists:
			if err := r.backend.Create(ctx, r.contractID, rec); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			res.Created++
		case cur.Signature != rec.Signature:
			rec.CreatedAt = cur.CreatedAt
			if err := r.backend.Update(ctx, r.contractID, rec); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	// Deletes are skipped entirely once a write has failed. A flaky store
	// must not be able to turn missing creates into a wave of deletes.
	if firstErr == nil {
		for _, rec := range existing {
			if desiredUIDs[rec.UID] {
				continue
			}
			if !rec.Generated || !horizon.Contains(rec.Start) {
				continue
			}
			if err := r.backend.Delete(ctx, r.contractID, rec.UID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			res.Deleted++
		}
	}

	metrics.RecordReconcileOps(string(variant), res.Created, res.Updated, res.Deleted)

	if firstErr != nil {
		if errors.Is(firstErr, ErrStoreUnavailable) {
			return res, firstErr
		}
		return res, fmt.Errorf("reconcile for %s: %w", variant, firstErr)
	}

	if res.Changed() {
		log.Ctx(ctx).InfoContext(
			ctx,
			"reconciled calendar events",
			slog.String("variant", string(variant)),
			slog.Int("created", res.Created),
			slog.Int("updated", res.Updated),
			slog.Int("deleted", res.Deleted),
			slog.Int("unchanged", res.Unchanged),
		)
	}
	return res, nil
}
