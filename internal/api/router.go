package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/api/handlers"
	"github.com/nagomirachel/flagsmith/internal/api/middleware"
	"github.com/nagomirachel/flagsmith/internal/pkg/metrics"
)

type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	WebhookHandler *handlers.WebhookHandler
	FeatureHandler *handlers.FeatureHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler

	AuthMiddleware        *middleware.AuthMiddleware
	EnvironmentMiddleware *middleware.EnvironmentMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))

	authMid := deps.AuthMiddleware
	envMid := deps.EnvironmentMiddleware

	// Webhook configuration, scoped by environment api key
	router.GET("/api/v1/environments/:env/webhooks",
		chain(deps.WebhookHandler.List, authMid.Handle, envMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/v1/environments/:env/webhooks",
		chain(deps.WebhookHandler.Create, authMid.Handle, envMid.Handle, middleware.RateLimit("api_write")))
	router.GET("/api/v1/environments/:env/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Get, authMid.Handle, envMid.Handle, middleware.RateLimit("api_read")))
	router.PUT("/api/v1/environments/:env/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid.Handle, envMid.Handle, middleware.RateLimit("api_write")))
	router.PATCH("/api/v1/environments/:env/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid.Handle, envMid.Handle, middleware.RateLimit("api_write")))
	router.DELETE("/api/v1/environments/:env/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Delete, authMid.Handle, envMid.Handle, middleware.RateLimit("api_write")))
	router.GET("/api/v1/environments/:env/webhooks/:webhook_id/deliveries",
		chain(deps.WebhookHandler.ListDeliveries, authMid.Handle, envMid.Handle, middleware.RateLimit("api_read")))

	router.GET("/api/v1/environments/:env/audit",
		chain(deps.AuditHandler.List, authMid.Handle, envMid.Handle, middleware.RateLimit("api_read")))

	// Feature state changes are the event source for webhook dispatch
	router.PUT("/api/v1/environments/:env/features/:feature_id",
		chain(deps.FeatureHandler.UpdateState, authMid.Handle, envMid.Handle, middleware.RateLimit("api_write")))

	return router
}

// chain applies middlewares right to left, innermost last.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// wrap converts an http.HandlerFunc to an httprouter.Handle, injecting the
// route params into the request context and recording request metrics.
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(rec, r.WithContext(ctx))

		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
