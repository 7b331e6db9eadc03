// Package calendar persists peak windows as calendar events and keeps the
// stored events reconciled with the desired schedule.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

var (
	// ErrEventNotFound is returned when no calendar event exists for a UID.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached. Callers must treat it as retryable and must not interpret it
	// as an empty calendar.
	ErrStoreUnavailable = errors.New("calendar store unavailable")
)

// Backend defines the interface for persisting calendar events.
type Backend interface {
	// Create stores a new event. Fails if the UID already exists.
	Create(ctx context.Context, contractID string, rec types.CalendarRecord) error
	// Update replaces the event with the given UID in place.
	Update(ctx context.Context, contractID string, rec types.CalendarRecord) error
	// Delete removes the event with the given UID.
	Delete(ctx context.Context, contractID, uid string) error
	// Get returns a single event by UID.
	Get(ctx context.Context, contractID, uid string) (types.CalendarRecord, error)
	// List returns all events for a contract and tariff variant.
	List(ctx context.Context, contractID string, variant types.TariffVariant) ([]types.CalendarRecord, error)

	// Lifecycle
	Close() error
}

// Configured sets up the calendar backend based on flags.
func Configured() Backend {
	provider := lflag.String("calendar-provider", "firestore", "Calendar backend to use (available: firestore, memory)")

	var p struct{ Backend }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Backend = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Backend = NewMemoryBackend()
		default:
			panic(fmt.Sprintf("unknown calendar provider: %s", *provider))
		}
	})

	return &p
}

// Horizon bounds which stored events a reconcile pass is allowed to delete.
type Horizon struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the horizon. From is inclusive,
// To is exclusive.
func (h Horizon) Contains(t time.Time) bool {
	return !t.Before(h.From) && t.Before(h.To)
}
