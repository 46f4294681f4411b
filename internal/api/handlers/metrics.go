package handlers

import (
	"net/http"

	"github.com/nagomirachel/flagsmith/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsHandler struct {
	inner http.Handler
}

func NewMetricsHandler() *MetricsHandler {
	metrics.Register()
	return &MetricsHandler{
		inner: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.inner.ServeHTTP(w, r)
}
