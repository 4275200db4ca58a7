// Package admin implements a minimal health/readiness/stats HTTP surface for
// one engine instance (§6 "Embedded-application surface": stats()). It is
// deliberately not a data-plane gateway — no routes accept or serve file
// bytes — mirroring the narrow health/ready/live footprint the gateway's
// internal/api.Handler registers alongside its (out-of-scope, S3-shaped)
// object routes.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/crypto"
	"github.com/dreamware/msscs/internal/debug"
	"github.com/dreamware/msscs/internal/metrics"
	"github.com/dreamware/msscs/internal/middleware"
	"github.com/dreamware/msscs/internal/placement"
)

// Stats mirrors §6's stats() result.
type Stats struct {
	BlockCount         int     `json:"block_count"`
	BytesStored        int64   `json:"bytes_stored"`
	PeerCount          int     `json:"peer_count"`
	UptimeSeconds      float64 `json:"uptime_s"`
	RequestsTotal      uint64  `json:"requests_total"`
	RequestsFailed     uint64  `json:"requests_failed"`
	SuccessRate        float64 `json:"success_rate"`
	AESHardwareSupport bool    `json:"aes_hardware_support"`
}

// Handler serves the admin HTTP surface: health, readiness, liveness,
// stats, and a debug-logging toggle. It holds no reference to file bytes or
// plaintext — only the BlockStore's occupancy counters and the routing
// layer's peer list.
type Handler struct {
	store     *blockstore.Store
	router    placement.Router
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	hardware  config.HardwareConfig
	startTime time.Time

	requestsTotal  uint64
	requestsFailed uint64
}

// NewHandler constructs an admin Handler for one running engine instance.
func NewHandler(store *blockstore.Store, router placement.Router, m *metrics.Metrics, logger *logrus.Logger, hardware config.HardwareConfig) *Handler {
	return &Handler{
		store:     store,
		router:    router,
		metrics:   m,
		logger:    logger,
		hardware:  hardware,
		startTime: time.Now(),
	}
}

// RecordRequest tallies one FileEngine operation outcome. Callers (typically
// cmd/vault or an embedding UI shell) invoke this once per write/read/delete
// so stats() can report requests_total/requests_failed/success_rate.
func (h *Handler) RecordRequest(success bool) {
	atomic.AddUint64(&h.requestsTotal, 1)
	if !success {
		atomic.AddUint64(&h.requestsFailed, 1)
	}
}

// RegisterRoutes registers the admin surface on r, wrapped in the same
// logging/recovery middleware chain the gateway's Handler.RegisterRoutes
// applied to its own routes. Unlike the gateway's, there is no data-plane
// subrouter: this surface never touches file bytes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.RecoveryMiddleware(h.logger))
	r.Use(middleware.LoggingMiddleware(h.logger))

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")
	r.HandleFunc("/stats", h.handleStats).Methods("GET")
	r.HandleFunc("/debug", h.handleDebug).Methods("GET", "POST")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.HealthHandler()(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/health", http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.ReadinessHandler(h.dependencyHealthCheck)(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/ready", http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.LivenessHandler()(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/live", http.StatusOK, time.Since(start), 0)
}

// dependencyHealthCheck pings the routing layer for its connected-peer list.
// A Router that errors here is treated as not-ready; LoopbackRouter (the
// single-node degenerate Router) never errors, so a standalone instance is
// always ready once it starts.
func (h *Handler) dependencyHealthCheck(ctx context.Context) error {
	if h.router == nil {
		return nil
	}
	_, err := h.router.ConnectedPeers(ctx)
	return err
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	blockStats := h.store.Stats()

	peerCount := 0
	if h.router != nil {
		if peers, err := h.router.ConnectedPeers(r.Context()); err == nil {
			peerCount = len(peers)
		}
	}

	total := atomic.LoadUint64(&h.requestsTotal)
	failed := atomic.LoadUint64(&h.requestsFailed)
	successRate := 1.0
	if total > 0 {
		successRate = float64(total-failed) / float64(total)
	}

	stats := Stats{
		BlockCount:         blockStats.BlocksTotal,
		BytesStored:        blockStats.BytesStored,
		PeerCount:          peerCount,
		UptimeSeconds:      time.Since(h.startTime).Seconds(),
		RequestsTotal:      total,
		RequestsFailed:     failed,
		SuccessRate:        successRate,
		AESHardwareSupport: crypto.IsHardwareAccelerationEnabled(h.hardware),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.WithError(err).Warn("admin: encode stats response failed")
	}

	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/stats", http.StatusOK, time.Since(start), 0)
}

// handleDebug reports debug-logging state on GET and toggles it on POST
// (?enabled=true|false), following internal/debug's process-wide flag.
func (h *Handler) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		switch r.URL.Query().Get("enabled") {
		case "true":
			debug.SetEnabled(true)
		case "false":
			debug.SetEnabled(false)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"enabled": debug.Enabled()})
}
