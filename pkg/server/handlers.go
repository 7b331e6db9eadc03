package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// handleState returns the derived sensor snapshot for a contract.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	c, err := s.findContract(r.URL.Query().Get("contractID"), r.URL.Query().Get("variant"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	snap, err := c.Sensors.Snapshot(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to compute snapshot", slog.Any("error", err))
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

// handleListEvents returns the stored upcoming events for a contract.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	c, err := s.findContract(r.URL.Query().Get("contractID"), r.URL.Query().Get("variant"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	recs, err := s.backend.List(r.Context(), c.ContractID, c.Variant)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list events", slog.Any("error", err))
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	now := time.Now()
	upcoming := make([]types.CalendarRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.End.After(now) {
			upcoming = append(upcoming, rec)
		}
	}
	writeJSON(w, upcoming)
}

type createEventRequest struct {
	ContractID string `json:"contractID"`
	Variant    string `json:"variant"`
	Date       string `json:"date"`
	TimeSlot   string `json:"timeSlot"`
}

type createEventResponse struct {
	UID   string `json:"uid"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// handleCreateEvent records a hand-entered critical peak for a date and
// AM/PM slot and syncs immediately. The UID derivation matches the merge
// pipeline, so a later real announcement for the same window deduplicates
// onto the same record and repeating the request is a no-op.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	c, err := s.findContract(req.ContractID, req.Variant)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", req.Date, peaks.Location())
	if err != nil {
		writeJSONError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	var kind types.WindowKind
	switch req.TimeSlot {
	case "AM":
		kind = types.KindMorningPeak
	case "PM":
		kind = types.KindEveningPeak
	default:
		writeJSONError(w, "timeSlot must be AM or PM", http.StatusBadRequest)
		return
	}
	span, ok := peaks.OffsetsFor(c.Variant, 0).Spans[kind]
	if !ok {
		writeJSONError(w, "no such time slot for this tariff", http.StatusBadRequest)
		return
	}
	start, end := span.On(day.Year(), day.Month(), day.Day())

	aw := types.AnnouncedWindow{
		Variant: c.Variant,
		Start:   start,
		End:     end,
	}
	if err := c.Engine.AddManualAnnouncement(r.Context(), aw); err != nil {
		if errors.Is(err, calendar.ErrStoreUnavailable) {
			writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, createEventResponse{
		UID:   types.EventUID(c.ContractID, c.Variant, kind, start),
		Start: start.Format(time.RFC3339),
		End:   end.Format(time.RFC3339),
	})
}

type refreshRequest struct {
	ContractID string `json:"contractID"`
	Variant    string `json:"variant"`
}

// handleRefresh triggers an immediate sync cycle. A request landing while
// a cycle is in flight is coalesced by the engine, never run in parallel.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	c, err := s.findContract(req.ContractID, req.Variant)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := c.Engine.Sync(r.Context()); err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "manual refresh failed", slog.Any("error", err))
		writeJSONError(w, "sync failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		State string `json:"state"`
	}{State: string(c.Engine.State())})
}

// handleAccount returns the latest portal account snapshot for a contract.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if s.portalClient == nil {
		writeJSONError(w, "portal not configured", http.StatusNotFound)
		return
	}
	contractID := r.URL.Query().Get("contractID")
	if contractID == "" && len(s.contracts) == 1 {
		contractID = s.contracts[0].ContractID
	}
	snap, err := s.portalClient.AccountSnapshot(r.Context(), contractID)
	if err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "portal snapshot failed", slog.Any("error", err))
		writeJSONError(w, "portal unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}
