// Package api provides the HTTP surface of Beacon: the public ingestion
// endpoint, the tracker script and the bearer-protected admin API.
//
// Public routes:
//
//	POST /v1/event    record one browser event
//	GET  /tracker.js  client emitter with its config prelude
//	GET  /healthz     store connectivity
//	POST /v1/ingest   signed server-to-server event (see package signature)
//
// Admin routes live under /v1 and require "Authorization: Bearer <token>".
// When no admin token is configured they respond 404.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/signature"
)

// DefaultEndpoint is the ingestion path advertised to the tracker script.
const DefaultEndpoint = "/v1/event"

// maxBodyBytes bounds ingestion and admin request bodies.
const maxBodyBytes = 64 << 10

// Config configures the HTTP handler.
type Config struct {
	// AdminToken guards the admin API. Empty disables it.
	AdminToken string

	// AllowedOrigins lists the origins allowed to post events cross-site.
	// Empty allows any origin.
	AllowedOrigins []string

	// Endpoint is the ingestion URL written into the tracker config.
	// Defaults to DefaultEndpoint.
	Endpoint string

	// ProducerSecrets verify signed server-to-server events on
	// POST /v1/ingest. Empty disables the route.
	ProducerSecrets []string

	// SignatureTolerance bounds producer clock skew. Defaults to
	// signature.DefaultTolerance.
	SignatureTolerance time.Duration
}

// Handler is the root HTTP handler for Beacon.
type Handler struct {
	beacon   *beacon.Beacon
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
	verifier *signature.Verifier
}

// NewHandler creates a new HTTP handler.
func NewHandler(b *beacon.Beacon, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	h := &Handler{
		beacon: b,
		config: cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	if len(cfg.ProducerSecrets) > 0 {
		h.verifier = signature.NewVerifier(cfg.SignatureTolerance, cfg.ProducerSecrets...)
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Ingestion
	ingest := h.corsFor(http.HandlerFunc(h.collect))
	h.mux.Handle("POST /v1/event", ingest)
	h.mux.Handle("OPTIONS /v1/event", ingest)
	h.mux.HandleFunc("GET /tracker.js", h.trackerScript)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("POST /v1/ingest", h.ingest)

	// Stats
	h.mux.Handle("GET /v1/stats/counts", h.admin(h.eventCounts))
	h.mux.Handle("GET /v1/stats/searches", h.admin(h.topSearches))
	h.mux.Handle("GET /v1/stats/values", h.admin(h.topValues))
	h.mux.Handle("GET /v1/stats/referrers", h.admin(h.topReferrers))
	h.mux.Handle("GET /v1/stats/recent", h.admin(h.recentEvents))
	h.mux.Handle("GET /v1/stats/nav", h.admin(h.navClicks))
	h.mux.Handle("GET /v1/stats/series", h.admin(h.timeSeries))
	h.mux.Handle("GET /v1/stats/funnel", h.admin(h.funnel))
	h.mux.Handle("GET /v1/stats/metrics/{set}", h.admin(h.metrics))

	// Events
	h.mux.Handle("GET /v1/events", h.admin(h.listEvents))
	h.mux.Handle("POST /v1/track", h.admin(h.track))

	// Event types
	h.mux.Handle("GET /v1/event-types", h.admin(h.listEventTypes))
	h.mux.Handle("POST /v1/event-types", h.admin(h.createEventType))
	h.mux.Handle("DELETE /v1/event-types/{name}", h.admin(h.deleteEventType))
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.requestID(h.panicRecovery(h.logging(next)))
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" || len(rid) > 64 {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		r.Header.Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.DebugContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) corsFor(next http.Handler) http.Handler {
	origins := h.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "DNT"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           600,
	}).Handler(next)
}

// admin guards a route with the bearer token.
func (h *Handler) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminToken == "" {
			http.NotFound(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.config.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.beacon.Store().Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int, or 0 when absent or malformed.
// The engine maps values below 1 to its defaults.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
