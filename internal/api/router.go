package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/synapse/internal/api/handlers"
	mw "github.com/Harshitk-cp/synapse/internal/api/middleware"
	"github.com/Harshitk-cp/synapse/internal/config"
	"github.com/Harshitk-cp/synapse/internal/service"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and wired services.
type App struct {
	Router    *chi.Mux
	Attention *service.AttentionService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	// Stores
	tenantStore := store.NewTenantStore(db)
	conceptStore := store.NewConceptStore(db)
	linkStore := store.NewLinkStore(db)

	// Model: loaded once at construction. A load failure with fallback
	// enabled means this instance runs heuristic-only until restarted.
	predictor, err := service.LoadModel(service.AttentionConfig{
		Enabled:             config.NeuralEnabled(),
		ModelPath:           config.ModelPath(),
		FallbackToHeuristic: config.FallbackToHeuristic(),
	}, logger)
	if err != nil {
		return nil, err
	}

	attentionSvc := service.NewAttentionService(linkStore, conceptStore, predictor, logger)

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore)
	conceptHandler := handlers.NewConceptHandler(conceptStore)
	attentionHandler := handlers.NewAttentionHandler(attentionSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Attention: attentionSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Tenant creation (no auth, bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(tenantStore))

		r.Route("/concepts", func(r chi.Router) {
			r.Get("/", conceptHandler.List)
			r.Post("/", conceptHandler.Create)
		})

		r.Route("/attention", func(r chi.Router) {
			r.Post("/update", attentionHandler.Update)
			r.Post("/predict", attentionHandler.Predict)
			r.Get("/stats", attentionHandler.Stats)
		})
	})

	return app, nil
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"using_neural":   app.Attention.UsingNeural(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
