package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/stayops/ota-bridge/internal/amendment"
	"github.com/stayops/ota-bridge/internal/channel"
	"github.com/stayops/ota-bridge/internal/config"
	"github.com/stayops/ota-bridge/internal/database"
	"github.com/stayops/ota-bridge/internal/handler"
	"github.com/stayops/ota-bridge/internal/middleware"
	"github.com/stayops/ota-bridge/internal/queue"
	"github.com/stayops/ota-bridge/internal/repository"
	"github.com/stayops/ota-bridge/internal/review"
	"github.com/stayops/ota-bridge/internal/router"
	"github.com/stayops/ota-bridge/internal/webhook"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	deliveryCfg := config.LoadDeliveryConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: rate limiting, response caching and the
	// amendment idempotency guard all degrade gracefully without it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis: unavailable, caching and rate limiting disabled")
	}

	bookingRepo := repository.NewBookingRepo(db)
	endpointRepo := repository.NewEndpointRepo(db)
	deliveryRepo := repository.NewDeliveryRepo(db)
	tenantRepo := repository.NewTenantRepo(db)

	// Outbound delivery: partitioned queue feeding per-partition workers,
	// mirrored in MySQL so pending jobs survive restarts.
	jobQueue := queue.NewPartitioned(deliveryCfg.Partitions, deliveryCfg.QueueDepth)
	dispatcher := webhook.NewDispatcher(endpointRepo, deliveryRepo, jobQueue, &http.Client{}, deliveryCfg.DefaultTimeout)
	bus := webhook.NewBus(endpointRepo, jobQueue, deliveryRepo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)
	if err := dispatcher.Requeue(ctx); err != nil {
		log.Printf("dispatcher: requeue pending jobs: %v", err)
	}

	// Manual review queue and its consumer.  The consumer only logs
	// review items; real deployments point reviewers at the queue
	// directly.
	reviewQueue := review.NewQueue(cfg.AMQPURL)
	go func() {
		if err := review.StartConsumer(cfg.AMQPURL); err != nil {
			log.Printf("review-consumer: %v", err)
		}
	}()

	channels := channel.NewRegistry()
	validator := amendment.NewValidator(bookingRepo, nil)
	coordinator := amendment.NewCoordinator(bookingRepo, reviewQueue, bus, channels, validator)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	healthHandler := handler.NewHealthHandler(db, rdb)
	amendmentHandler := handler.NewAmendmentHandler(coordinator, bookingRepo, rdb)
	endpointHandler := handler.NewEndpointHandler(endpointRepo)
	authHandler := handler.NewAuthHandler(cfg, tenantRepo)

	router.RegisterRoutes(e, healthHandler, amendmentHandler)
	auth := router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	auth.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterAmendments(auth, amendmentHandler)
	router.RegisterEndpoints(auth, endpointHandler)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// Stop accepting new jobs and let in-flight deliveries finish; jobs
	// still pending are re-read from MySQL on the next start.
	jobQueue.Close()
	dispatcher.Wait()
}
