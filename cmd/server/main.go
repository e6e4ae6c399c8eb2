package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv" // Load .env (dev/local)
	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/cache"
	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/database"
	"github.com/0x377/flashsale-core/internal/handler"
	"github.com/0x377/flashsale-core/internal/lifecycle"
	"github.com/0x377/flashsale-core/internal/middleware"
	"github.com/0x377/flashsale-core/internal/order"
	"github.com/0x377/flashsale-core/internal/queue"
	queuepublisher "github.com/0x377/flashsale-core/internal/service"
	"github.com/0x377/flashsale-core/internal/repository"
	"github.com/0x377/flashsale-core/internal/reservation"
	"github.com/0x377/flashsale-core/internal/router"
	"github.com/0x377/flashsale-core/internal/webhook"
)

// amqpPublisher adapts the queue_publisher package's free function to the
// webhook package's Publisher interface.
type amqpPublisher struct{}

func (amqpPublisher) PublishOrderSettled(ctx context.Context, ev queue.OrderSettledEvent) error {
	return queuepublisher.PublishOrderSettled(ctx, ev)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("info: .env not found; using defaults/env")
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: open failed: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("warning: redis unavailable; running without cache, rate limiting, or sweep locking")
	}

	products := repository.NewProductRepo(db)
	holds := repository.NewHoldRepo(db)
	orders := repository.NewOrderRepo(db)
	idempotency := repository.NewIdempotencyRepo(db)
	deferredWebhooks := repository.NewDeferredWebhookRepo(db)
	failedWebhooks := repository.NewFailedWebhookRepo(db)

	stockCache := cache.NewStockCache(rdb, config.LoadStockCacheConfig())

	engine := reservation.New(db, products, holds, stockCache, cfg)

	processor := webhook.New(db, orders, holds, products, idempotency, deferredWebhooks, failedWebhooks, amqpPublisher{}, cfg)
	machine := order.New(db, products, holds, orders, deferredWebhooks, processor, cfg)
	sweeper := lifecycle.New(rdb, orders, holds, idempotency, engine, machine, cfg)

	e := echo.New()
	e.HideBanner = true

	handlers := router.Handlers{
		Products: handler.NewProductHandler(products, stockCache),
		Holds:    handler.NewHoldHandler(engine, holds, cfg),
		Orders:   handler.NewOrderHandler(machine),
		Webhooks: handler.NewWebhookHandler(processor, cfg.WebhookSignatureHeader, cfg.Env == "test"),
	}

	loadShed := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	responseCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	router.RegisterRoutes(e, handlers, loadShed, responseCache)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)

	consumerDone := make(chan struct{})
	go func() {
		queue.StartOrderSettledConsumer(consumerDone)
	}()

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown: signal received, draining")

	close(consumerDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HoldSweepInterval+5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: echo shutdown error: %v", err)
	}
}
