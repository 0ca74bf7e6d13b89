package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/aggregate"
)

// ingestRequest is the body posted by the tracker. Every field is optional
// at decode time; a missing type is rejected by the validator.
type ingestRequest struct {
	EventType string
	EventData json.RawMessage
	PageURL   string
	Referrer  string
}

// decodeIngest reads the body leniently. Malformed JSON yields an empty
// request and fields of the wrong shape are ignored individually.
func decodeIngest(w http.ResponseWriter, r *http.Request) ingestRequest {
	defer r.Body.Close()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return ingestRequest{}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ingestRequest{}
	}

	req := ingestRequest{
		EventType: stringField(fields, "event_type"),
		PageURL:   stringField(fields, "page_url"),
		Referrer:  stringField(fields, "referrer"),
	}
	if data, ok := fields["event_data"]; ok && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		req.EventData = data
	}
	return req
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}

// collect is the public ingestion endpoint.
func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("DNT") == "1" {
		h.beacon.RecordDoNotTrack()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	req := decodeIngest(w, r)

	var data any
	if req.EventData != nil {
		data = req.EventData
	}

	err := h.beacon.Collect(r.Context(), beacon.Hit{
		Type:      req.EventType,
		Data:      data,
		PageURL:   req.PageURL,
		Referrer:  req.Referrer,
		UserAgent: r.UserAgent(),
	}, func() string {
		return h.beacon.Sessions().Resolve(w, r)
	})

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, beacon.ErrInvalidEventType):
		writeError(w, http.StatusBadRequest, "Invalid event type.")
	case errors.Is(err, beacon.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
	default:
		writeError(w, http.StatusInternalServerError, "Unable to record event.")
	}
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := aggregate.QueryParams{
		EventType:  q.Get("event_type"),
		EventTypes: q["event_types"],
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
		Order:      q.Get("order"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}

	events, err := h.beacon.Engine().QueryEvents(r.Context(), params)
	if err != nil {
		h.queryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

type trackRequest struct {
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	PageURL   string          `json:"page_url"`
}

type trackResponse struct {
	Success bool `json:"success"`
}

// track records an event through the programmatic entry point.
func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var data any
	if len(req.EventData) > 0 {
		data = req.EventData
	}

	ok, err := h.beacon.Track(r.Context(), req.EventType, data, req.PageURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "track failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to record event.")
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{Success: ok})
}
