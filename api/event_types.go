package api

import (
	"net/http"

	"github.com/xraph/beacon/catalog"
)

type createEventTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Group       string `json:"group,omitempty"`
}

func (h *Handler) createEventType(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Group == "" {
		req.Group = catalog.GroupBrowser
	}

	def := catalog.Definition{
		Name:        req.Name,
		Description: req.Description,
		Group:       req.Group,
	}
	h.beacon.Catalog().Register(def)

	h.logger.InfoContext(r.Context(), "event type registered", "name", def.Name, "group", def.Group)
	writeJSON(w, http.StatusCreated, def)
}

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	group := queryParam(r, "group")

	defs := h.beacon.Catalog().List()
	out := make([]catalog.Definition, 0, len(defs))
	for _, d := range defs {
		if group != "" && d.Group != group {
			continue
		}
		out = append(out, d)
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if !h.beacon.Catalog().Remove(name) {
		writeError(w, http.StatusNotFound, "event type not found")
		return
	}

	h.logger.InfoContext(r.Context(), "event type removed", "name", name)
	w.WriteHeader(http.StatusNoContent)
}
