package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/depwatch/pkg/logger"
)

// Router wires the handlers into a chi mux.
type Router struct {
	handler        *Handler
	ws             http.Handler
	allowedOrigins map[string]bool
	logger         *logger.Logger
}

// NewRouter creates the API router. ws serves the live feed at /ws and may
// be nil. An empty origins list allows any origin.
func NewRouter(h *Handler, ws http.Handler, corsOrigins []string, log *logger.Logger) *Router {
	origins := make(map[string]bool, len(corsOrigins))
	for _, o := range corsOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	return &Router{
		handler:        h,
		ws:             ws,
		allowedOrigins: origins,
		logger:         log.Named("api-router"),
	}
}

// Routes returns the configured mux
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(rt.cors)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", rt.handler.GetHealth)
		r.Get("/stations", rt.handler.GetStations)
		r.Get("/departures", rt.handler.GetDepartures)
		r.Get("/schedule", rt.handler.GetSchedule)
		r.Get("/schedule/export.xlsx", rt.handler.ExportSchedule)

		r.Post("/ingest/trigger", rt.handler.TriggerIngest)
		r.Post("/schedule/recompute", rt.handler.RecomputeSchedule)
	})

	if rt.ws != nil {
		r.Handle("/ws", rt.ws)
	}

	return r
}

// requestLogger logs each request at debug level.
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// cors adds CORS headers for browser access.
func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(rt.allowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case rt.allowedOrigins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
