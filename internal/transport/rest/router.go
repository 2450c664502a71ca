package rest

import (
	"livesession/internal/service"
	"livesession/internal/transport/rest/handler"
	"livesession/internal/transport/rest/middleware"
	"livesession/internal/transport/ws"
	"net/http"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService *service.AuthService
	Gateway     *service.SessionGateway
	WSHub       *ws.Hub
	CORSOrigin  string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler()
	sessionHandler := handler.NewSessionHandler(c.Gateway)
	metricsHandler := handler.NewMetricsHandler(c.Gateway)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Gateway)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORSOrigin))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/metrics", metricsHandler.Get).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket route (public with join token in query param)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")

	// User routes (require identity token)
	userRoutes := v1.NewRoute().Subrouter()
	userRoutes.Use(authMW.RequireUser)

	userRoutes.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/me/sessions", sessionHandler.ListMine).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/presence", sessionHandler.Presence).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/leave", sessionHandler.Leave).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/heartbeat", sessionHandler.Heartbeat).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/end", sessionHandler.End).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/cancel", sessionHandler.Cancel).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
