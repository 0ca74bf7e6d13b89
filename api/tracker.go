package api

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/xraph/beacon/catalog"
)

//go:embed assets/tracker.js
var trackerJS []byte

type trackerConfig struct {
	Endpoint string   `json:"endpoint"`
	Events   []string `json:"events"`
}

// trackerScript serves the client emitter prefixed with its config. The
// event list is read per request so catalog changes apply immediately.
func (h *Handler) trackerScript(w http.ResponseWriter, _ *http.Request) {
	cfg, err := json.Marshal(trackerConfig{
		Endpoint: h.config.Endpoint,
		Events:   h.beacon.Catalog().Names(catalog.GroupBrowser),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("window.BeaconAnalytics = window.BeaconAnalytics || ")) //nolint:errcheck // best effort
	w.Write(cfg)                                                           //nolint:errcheck // best effort
	w.Write([]byte(";\n"))                                                 //nolint:errcheck // best effort
	w.Write(trackerJS)                                                     //nolint:errcheck // best effort
}
