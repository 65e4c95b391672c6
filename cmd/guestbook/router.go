package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"guestbook/internal/common"
	"guestbook/internal/log"
	"guestbook/internal/metrics"
	"guestbook/internal/wire"
)

// setupRouter configures HTTP routes
func setupRouter(app *wire.Application) *mux.Router {
	router := mux.NewRouter()

	router.Use(corsMiddleware(app.Config.Server.PublicURL))
	router.Use(loggingMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", healthCheckHandler(app)).Methods(http.MethodGet)
	api.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	api.Handle("/realtime/{table}", app.Realtime).Methods(http.MethodGet)

	// everything below knows who the visitor is
	visitor := api.NewRoute().Subrouter()
	visitor.Use(common.AuthMiddleware(app.Tokens, app.Sessions))
	app.Guestbook.RegisterRoutes(visitor)
	app.Auth.RegisterRoutes(visitor)

	// preflight for any path, so corsMiddleware runs before method matching
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}

// corsMiddleware allows the public site to call the API with cookies.
func corsMiddleware(origin string) mux.MiddlewareFunc {
	origin = strings.TrimRight(origin, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func healthCheckHandler(app *wire.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := app.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      status,
			"service":     "guestbook",
			"sessions":    app.Registry.Len(),
			"subscribers": app.Hub.SubscriberCount(),
		})
	}
}
