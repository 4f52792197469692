package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)
	authed := Chain(chain, h.Authenticate)

	// Batches
	mux.Handle("GET /api/v1/batches", chain(http.HandlerFunc(h.ListBatches)))
	mux.Handle("POST /api/v1/batches", authed(http.HandlerFunc(h.SubmitBatch)))
	mux.Handle("GET /api/v1/batches/{id}", chain(http.HandlerFunc(h.GetBatch)))
	mux.Handle("GET /api/v1/batches/{id}/commands", chain(http.HandlerFunc(h.ListCommands)))
	mux.Handle("POST /api/v1/batches/{id}/run", authed(http.HandlerFunc(h.RunSlice)))

	// Background
	mux.Handle("POST /api/v1/batches/{id}/background/start", authed(http.HandlerFunc(h.StartBackground)))
	mux.Handle("POST /api/v1/batches/{id}/background/stop", authed(http.HandlerFunc(h.StopBackground)))
	mux.Handle("POST /api/v1/batches/{id}/background/suspend", authed(http.HandlerFunc(h.SuspendBackground)))
}
