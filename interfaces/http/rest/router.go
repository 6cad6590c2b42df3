package rest

import (
	"net/http"

	"mindsync/application/ports"
	"mindsync/application/resolution"
	"mindsync/infrastructure/config"
	"mindsync/interfaces/http/rest/handlers"
	"mindsync/interfaces/http/rest/middleware"
	"mindsync/pkg/auth"
	"mindsync/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg       *config.Config
	resolver  *resolution.Resolver
	store     ports.OperationStore
	snapshots ports.DocumentStore
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	resolver *resolution.Resolver,
	store ports.OperationStore,
	snapshots ports.DocumentStore,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:       cfg,
		resolver:  resolver,
		store:     store,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.mindsync.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	var tracer *observability.Tracer
	if rt.cfg.EnableTracing {
		tracer = observability.NewTracer("mindsync")
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.jwtValidator(), rt.logger))

		syncHandler := handlers.NewSyncHandler(rt.resolver, rt.store, tracer, rt.logger)
		r.Route("/sync", func(r chi.Router) {
			r.Post("/operations", syncHandler.SubmitOperation)
			r.Post("/operations/batch", syncHandler.SubmitBatch)
			r.Get("/operations", syncHandler.RecentOperations)
			r.Get("/metrics", syncHandler.Metrics)
		})

		conflictHandler := handlers.NewConflictHandler(rt.resolver, rt.logger)
		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictHandler.ListConflicts)
			r.Get("/{conflictID}", conflictHandler.GetConflict)
			r.Post("/{conflictID}/resolve", conflictHandler.ResolveConflict)
		})

		snapshotHandler := handlers.NewSnapshotHandler(rt.snapshots, rt.logger)
		r.Route("/mindmaps/{mindmapID}/snapshot", func(r chi.Router) {
			r.Get("/", snapshotHandler.GetSnapshot)
			r.Put("/", snapshotHandler.SaveSnapshot)
		})
	})

	return router
}

// jwtValidator builds the validator from configuration; nil means open
// development mode.
func (rt *Router) jwtValidator() *auth.JWTValidator {
	if rt.cfg.JWTSecret == "" {
		if rt.cfg.IsProduction() {
			rt.logger.Error("running production without a JWT secret")
		}
		return nil
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     rt.cfg.JWTSecret,
		Issuer:        rt.cfg.JWTIssuer,
		Audience:      []string{"mindsync-api"},
	})
	if err != nil {
		rt.logger.Error("failed to build JWT validator", zap.Error(err))
		return nil
	}
	return validator
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
