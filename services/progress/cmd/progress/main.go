package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/auth"
	platformconfig "github.com/example/learning-platform/internal/platform/config"
	"github.com/example/learning-platform/internal/platform/db"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/logging"
	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/internal/platform/run"
	"github.com/example/learning-platform/services/progress/internal/cache"
	"github.com/example/learning-platform/services/progress/internal/config"
	"github.com/example/learning-platform/services/progress/internal/content"
	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/handlers"
	"github.com/example/learning-platform/services/progress/internal/progress"
	"github.com/example/learning-platform/services/progress/internal/store"
	"github.com/example/learning-platform/services/progress/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	repo, catalog, pool := initStores(cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		log.Warn("nats unavailable, async step events disabled", zap.Error(err))
		nc = nil
	} else {
		defer nc.Close()
	}

	pub, err := events.NewPublisher(nc, log)
	if err != nil {
		log.Error("init event publisher", zap.Error(err))
		run.Exit(1)
	}
	emitter := events.NewEmitter(pub, cfg.EventQueueSize, log)

	userCache := cache.NewUserCache(cfg.RedisAddr, cfg.CacheTTL, log)
	svc := progress.NewService(repo, catalog, userCache, emitter, log)

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: readiness(pool)})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/progress", handlers.Overview(svc))
		r.Get("/v1/modules/{moduleID}/resume", handlers.ResumeState(svc))
		r.Get("/v1/modules/{moduleID}/lessons/{lessonID}/progress", handlers.LessonDetail(svc))
		r.Put("/v1/modules/{moduleID}/lessons/{lessonID}/progress", handlers.UpdateStep(svc))
		r.Post("/v1/modules/{moduleID}/lessons/{lessonID}/complete", handlers.CompleteLesson(svc))
		r.Post("/v1/modules/{moduleID}/lessons/{lessonID}/events", handlers.EnqueueStepEvent(svc, pub))
		r.Post("/v1/resolve", handlers.ResolveIdentifier(svc))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTPAddr, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			w, err := worker.New(log, nc, svc)
			if err != nil {
				log.Error("init step consumer", zap.Error(err))
			} else {
				go func() {
					if err := w.Run(ctx); err != nil {
						log.Error("step consumer stopped", zap.Error(err))
					}
				}()
			}
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = emitter.Close(shutdownCtx)
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start()
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStores selects the persistence backend.
// In production (APP_ENV=production) it requires a working Postgres connection
// and terminates the process otherwise; in development it falls back to
// in-memory stores so the service runs without infrastructure.
func initStores(cfg config.Config, log *zap.Logger) (store.ProgressRepository, content.Catalog, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return store.NewMemoryStore(), content.NewMemoryCatalog(), nil
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		if platformconfig.IsProd() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory stores", zap.Error(err))
		return store.NewMemoryStore(), content.NewMemoryCatalog(), nil
	}

	if cfg.MigrateOnStart {
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Error("ensure progress schema", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		if err := content.EnsureSchema(ctx, pool); err != nil {
			log.Error("ensure content schema", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
	}

	log.Info("progress store: postgres")
	return store.NewPostgresStore(pool), content.NewPostgresCatalog(pool), pool
}

// readiness probes the backing database. With in-memory stores there is
// nothing to check and /readyz always reports ready.
func readiness(pool *pgxpool.Pool) func() error {
	if pool == nil {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
