package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Error  string `json:"error,omitempty"`
}

// pinger is satisfied by every ledger backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the hub's HTTP surface. Validators connect on /ws, though
// an upgrade request on any unrouted path is accepted too.
func NewRouter(coord *Coordinator, store pinger, metrics *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(store))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/api/v1/validators", validatorsHandler(coord.Registry()))
	r.Handle("/ws", coord)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if websocket.IsWebSocketUpgrade(req) {
			coord.ServeHTTP(w, req)
			return
		}
		http.NotFound(w, req)
	})

	return r
}

// healthHandler returns 200 if the store is reachable, 503 otherwise.
func healthHandler(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		response := HealthResponse{Status: "healthy", Store: "connected"}
		status := http.StatusOK
		if err := store.Ping(ctx); err != nil {
			response = HealthResponse{Status: "unhealthy", Store: "disconnected", Error: err.Error()}
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, response)
	}
}

func validatorsHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.ListAvailable())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
