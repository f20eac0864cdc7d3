package api

import (
	"context"
	"net/http"
	"time"

	"crewhall/src/lib"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type OpsRoutes struct {
	DB      Pinger
	Metrics *lib.Metrics
}

func RegisterOpsRoutes(mux *http.ServeMux, routes OpsRoutes) {
	mux.HandleFunc("/health", routes.handleHealth)
	mux.HandleFunc("/metrics", routes.handleMetrics)
}

func (r OpsRoutes) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	if err := r.DB.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r OpsRoutes) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, r.Metrics.Snapshot())
}
