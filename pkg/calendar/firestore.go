package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend implements the Backend interface using Google Cloud
// Firestore. Events live under contracts/{contractID}/calendar_events with
// the event UID as document ID.
type FirestoreBackend struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore backend.
// It registers flags for configuration.
func configuredFirestore() *FirestoreBackend {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreBackend{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the backend is properly configured.
func (f *FirestoreBackend) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the backend methods.
func (f *FirestoreBackend) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreBackend) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreBackend) getCollection(contractID string) (*firestore.CollectionRef, error) {
	if contractID == "" {
		return nil, fmt.Errorf("contractID cannot be empty")
	}
	return f.client.Collection("contracts").Doc(contractID).Collection("calendar_events"), nil
}

// wrapStoreErr maps transport-level failures to ErrStoreUnavailable so
// callers can distinguish "store unreachable" from "bad request".
func wrapStoreErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Create stores a new event document keyed by its UID.
func (f *FirestoreBackend) Create(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", rec.UID, err)
	}

	coll, err := f.getCollection(contractID)
	if err != nil {
		return err
	}
	_, err = coll.Doc(rec.UID).Create(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"variant":   string(rec.Variant),
		"timestamp": rec.Start,
	})
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("create event %s", rec.UID), err)
	}
	return nil
}

// Update replaces an existing event document in place, keeping its UID.
func (f *FirestoreBackend) Update(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", rec.UID, err)
	}

	coll, err := f.getCollection(contractID)
	if err != nil {
		return err
	}
	_, err = coll.Doc(rec.UID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"variant":   string(rec.Variant),
		"timestamp": rec.Start,
	})
	if err != nil {
		return wrapStoreErr(fmt.Sprintf("update event %s", rec.UID), err)
	}
	return nil
}

// Delete removes the event with the given UID. Deleting a missing event is
// not an error.
func (f *FirestoreBackend) Delete(ctx context.Context, contractID, uid string) error {
	coll, err := f.getCollection(contractID)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(uid).Delete(ctx); err != nil {
		return wrapStoreErr(fmt.Sprintf("delete event %s", uid), err)
	}
	return nil
}

// Get returns a single event by UID.
func (f *FirestoreBackend) Get(ctx context.Context, contractID, uid string) (types.CalendarRecord, error) {
	coll, err := f.getCollection(contractID)
	if err != nil {
		return types.CalendarRecord{}, err
	}
	doc, err := coll.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.CalendarRecord{}, fmt.Errorf("%w: %s", ErrEventNotFound, uid)
		}
		return types.CalendarRecord{}, wrapStoreErr(fmt.Sprintf("get event %s", uid), err)
	}
	return decodeRecord(ctx, doc)
}

// List returns all events for a contract and tariff variant.
func (f *FirestoreBackend) List(ctx context.Context, contractID string, variant types.TariffVariant) ([]types.CalendarRecord, error) {
	coll, err := f.getCollection(contractID)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where("variant", "==", string(variant)).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var recs []types.CalendarRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr("iterate events", err)
		}
		rec, err := decodeRecord(ctx, doc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed event doc", slog.String("uid", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func decodeRecord(ctx context.Context, doc *firestore.DocumentSnapshot) (types.CalendarRecord, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		return types.CalendarRecord{}, fmt.Errorf("event doc %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return types.CalendarRecord{}, fmt.Errorf("event doc %s 'json' field is not a string", doc.Ref.ID)
	}
	var rec types.CalendarRecord
	if err := json.Unmarshal([]byte(jsonStr), &rec); err != nil {
		return types.CalendarRecord{}, fmt.Errorf("failed to unmarshal event %s: %w", doc.Ref.ID, err)
	}
	return rec, nil
}
