// Package server wires HTTP handlers into a chi router for the GoChat
// application via routing helpers.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router: the health text at /, the WebSocket
// endpoint at /ws, the JSON API under /api and Prometheus metrics at /metrics.
func SetupRoutes(hub *Hub, log *slog.Logger) http.Handler {
	h := NewHandlers(hub, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/", h.HealthHandler)
	r.HandleFunc("/ws", h.WebSocketHandler)
	r.Handle("/metrics", hub.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requestLogger(log))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.origins.corsOrigins(),
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/health", h.Status)
		r.Get("/users/online", h.OnlineUsers)
		r.Get("/rooms", h.Rooms)
		r.Get("/rooms/{room}/typing", h.Typing)
		r.Get("/messages", h.Messages)
	})

	return r
}

// requestLogger logs one line per completed API request.
func requestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info("request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"latency", time.Since(start),
					"request_id", chimw.GetReqID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
