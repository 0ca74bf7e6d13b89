package api

import (
	"errors"
	"net/http"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/event"
)

func (h *Handler) eventCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.beacon.Engine().EventCounts(r.Context(), queryInt(r, "days"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) topSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := h.beacon.Engine().TopSearches(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searches)
}

func (h *Handler) topValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.beacon.Engine().TopValues(r.Context(),
		queryParam(r, "event_type"),
		queryParam(r, "field"),
		queryInt(r, "days"),
		queryInt(r, "limit"),
	)
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *Handler) topReferrers(w http.ResponseWriter, r *http.Request) {
	referrers, err := h.beacon.Engine().TopReferrers(r.Context(), queryInt(r, "limit"), queryInt(r, "days"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, referrers)
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.beacon.Engine().RecentEvents(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) navClicks(w http.ResponseWriter, r *http.Request) {
	clicks, err := h.beacon.Engine().NavClicks(r.Context(), queryInt(r, "days"), queryInt(r, "limit"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clicks)
}

func (h *Handler) timeSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.beacon.Engine().TimeSeries(r.Context(),
		queryParam(r, "event_type"),
		queryInt(r, "days"),
		event.ParseGranularity(queryParam(r, "granularity")),
	)
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *Handler) funnel(w http.ResponseWriter, r *http.Request) {
	f := aggregate.Funnel{
		Start:      queryParam(r, "start"),
		Completion: queryParam(r, "completion"),
	}
	res, err := h.beacon.Engine().FunnelFor(r.Context(), f, queryInt(r, "days"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	res, err := h.beacon.Engine().Metrics(r.Context(), r.PathValue("set"), queryInt(r, "days"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryError maps aggregation errors to responses. Storage errors are
// logged and not echoed to the caller.
func (h *Handler) queryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, beacon.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, beacon.ErrUnknownMetricSet):
		writeError(w, http.StatusNotFound, "metric set not found")
	default:
		h.logger.ErrorContext(r.Context(), "query failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "query failed")
	}
}
