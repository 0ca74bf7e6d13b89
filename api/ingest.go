package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/signature"
)

// ingest records an event posted by a backend producer. The body has the
// same shape as POST /v1/track and is authenticated by its HMAC signature
// instead of the admin token. Events are attributed to beacon.OriginServer.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		http.NotFound(w, r)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if err := h.verifier.VerifyRequest(r, body); err != nil {
		h.logger.WarnContext(r.Context(), "producer signature rejected",
			"error", err,
			"request_id", r.Header.Get("X-Request-ID"),
		)
		if errors.Is(err, signature.ErrStaleTimestamp) {
			writeError(w, http.StatusUnauthorized, "stale signature")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req trackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var data any
	if len(req.EventData) > 0 {
		data = req.EventData
	}

	ok, err := h.beacon.TrackFrom(r.Context(), beacon.OriginServer, req.EventType, data, req.PageURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to record event.")
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{Success: ok})
}
