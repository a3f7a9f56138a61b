// Package httpapi is the thin HTTP translation over pkg/orchestrator: one
// handler per route in spec.md's §6.3 table, plus the live-tail WebSocket
// route. Routing is gorilla/mux, grounded on services/control-plane/
// coordinator/main.go's router/middleware layout.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chartlylabs/vstate/internal/ws"
	"github.com/chartlylabs/vstate/pkg/orchestrator"
	"github.com/chartlylabs/vstate/pkg/telemetry"
)

const version = "0.1.0"

// Server wires an Orchestrator, a Hub for live-tail subscriptions, and a
// Logger into an http.Handler.
type Server struct {
	orch   *orchestrator.Orchestrator
	hub    *ws.Hub
	log    *telemetry.Logger
	health func(ctx context.Context) (telemetry.HealthSnapshot, error)
}

// New builds the HTTP handler. health, if nil, reports a static healthy
// snapshot with no components.
func New(orch *orchestrator.Orchestrator, hub *ws.Hub, log *telemetry.Logger, health func(ctx context.Context) (telemetry.HealthSnapshot, error)) http.Handler {
	if log == nil {
		log = telemetry.Nop
	}
	if health == nil {
		health = func(ctx context.Context) (telemetry.HealthSnapshot, error) {
			return telemetry.NewHealthSnapshot("vstate", "", "", nil, time.Now())
		}
	}
	s := &Server{orch: orch, hub: hub, log: log, health: health}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/store", s.handleStore).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/recall/{coord_id}", s.handleRecall).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/verify/{coord_id}", s.handleVerify).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/snapshot/{coord_id}", s.handleSnapshot).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/coords", s.handleListCoords).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/ws/coords/{coord_id}", s.handleWSTail).Methods(http.MethodGet)

	return requestLoggingMiddleware(log)(withCORS(withAuth(r)))
}
