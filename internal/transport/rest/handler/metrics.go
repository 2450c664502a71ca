package handler

import (
	"livesession/internal/service"
	"net/http"
)

// MetricsHandler serves process counters as JSON
type MetricsHandler struct {
	gateway *service.SessionGateway
}

func NewMetricsHandler(gateway *service.SessionGateway) *MetricsHandler {
	return &MetricsHandler{gateway: gateway}
}

// Get handles GET /metrics
func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Metrics())
}
