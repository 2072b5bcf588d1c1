// Package handler provides the HTTP and MCP surface of the server.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"weft-mcp/internal/cart"
	"weft-mcp/internal/metrics"
	"weft-mcp/internal/search"
	"weft-mcp/internal/session"
)

// Services are the domain components the handlers dispatch to.
type Services struct {
	Catalog  search.Catalog
	Search   *search.Engine
	Carts    *cart.Registry
	Sessions *session.Resolver
	Metrics  *metrics.Metrics
}

// Options control presentation and transport details.
type Options struct {
	// Currency suffixes every rendered amount.
	Currency string

	// WidgetDir holds products.html and cart.html. Empty disables widgets.
	WidgetDir string

	// Stateless runs the streamable MCP transport without session tracking.
	Stateless bool

	// Version is reported in the MCP implementation info.
	Version string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	services Services
	opts     Options
	logger   *slog.Logger
}

// New creates a new Handler.
func New(services Services, opts Options, logger *slog.Logger) *Handler {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{
		services: services,
		opts:     opts,
		logger:   logger,
	}
}

// Routes served by RegisterRoutes, used to bound metric label values.
var routes = map[string]bool{
	"/mcp":     true,
	"/health":  true,
	"/healthz": true,
	"/metrics": true,
}

// RouteLabel maps a request to its route for metrics. Unknown paths share
// one label.
func RouteLabel(r *http.Request) string {
	if routes[r.URL.Path] {
		return r.URL.Path
	}
	return "other"
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.Handle("GET /metrics", h.services.Metrics.Handler())
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
