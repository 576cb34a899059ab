package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/api/handlers"
	mw "github.com/botforge/botforge/internal/api/middleware"
	"github.com/botforge/botforge/internal/buildconfig"
	"github.com/botforge/botforge/internal/config"
	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/metrics"
	"github.com/botforge/botforge/internal/service"
	"github.com/botforge/botforge/internal/store"
	"github.com/botforge/botforge/internal/telegram"
	"github.com/botforge/botforge/internal/worker"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Lifecycle *service.LifecycleService
	Sweeper   *service.SweeperService
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	botStore := store.NewBotStore(db)
	endUserStore := store.NewEndUserStore(db)

	// Upstream client factory; the base URL override points workers and the
	// validator at a test double or self-hosted gateway.
	apiURL := config.TelegramAPIURL()
	newClient := func(token string) domain.BotClient {
		return telegram.NewClient(token, apiURL)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Services
	validatorSvc := service.NewValidatorService(newClient, config.ValidationTimeout(), logger)
	registry := service.NewWorkerRegistry()
	pollTimeout := config.PollTimeout()
	newWorker := func(bot *domain.TenantBot) service.WorkerRuntime {
		return worker.NewRuntime(bot, newClient(bot.Token), endUserStore, pollTimeout, logger)
	}
	lifecycleSvc := service.NewLifecycleService(
		botStore, registry, validatorSvc, newWorker, collector, logger,
		config.MaxBotsPerOwner(), config.WorkerStopTimeout(),
	)
	sweeperSvc := service.NewSweeperService(lifecycleSvc, logger)
	sweeperSvc.SetInterval(config.SweepInterval())

	// Handlers
	botHandler := handlers.NewBotHandler(lifecycleSvc)
	maintenanceHandler := handlers.NewMaintenanceHandler(lifecycleSvc)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.HTTPMetrics(collector))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.AdminAuth(config.AdminAPIKey()))

		r.Route("/bots", func(r chi.Router) {
			r.Post("/", botHandler.Create)
			r.Get("/", botHandler.List)
			r.Get("/stats", botHandler.Stats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", botHandler.GetByID)
				r.Post("/stop", botHandler.Stop)
				r.Post("/restart", botHandler.Restart)
				r.Post("/extend", botHandler.Extend)
			})
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/cleanup", maintenanceHandler.Cleanup)
			r.Post("/expire", maintenanceHandler.Expire)
		})
	})

	return &App{
		Router:    r,
		Lifecycle: lifecycleSvc,
		Sweeper:   sweeperSvc,
	}
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
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.BotStore       = (*store.BotStore)(nil)
	_ domain.EndUserStore   = (*store.EndUserStore)(nil)
	_ domain.BotClient      = (*telegram.Client)(nil)
	_ service.WorkerRuntime = (*worker.Runtime)(nil)
)
