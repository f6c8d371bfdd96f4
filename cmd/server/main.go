package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restopos/config"
	"restopos/internal/api"
	"restopos/internal/broker"
	"restopos/internal/outbox"
	"restopos/internal/projection"
	"restopos/internal/redisclient"
	"restopos/internal/reservation"
	"restopos/internal/service"
	"restopos/internal/store"
	"restopos/internal/util"
	"restopos/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting restopos service")

	tp, err := util.InitTracer("restopos", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	engine := reservation.NewEngine(db, cfg.Business.ReservationTTL)
	menuService := service.NewMenuService(db, redisClient, cfg.Business.MenuCacheTTL)
	orderService := service.NewOrderService(db, engine, redisClient, cfg.Business.TaxRateBps, cfg.Business.IdempotencyKeyTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	dispatcher := outbox.NewDispatcher(db, producer, cfg.Business.OutboxPollInterval, cfg.Business.OutboxMaxAttempts)
	go func() {
		if err := dispatcher.Run(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Outbox dispatcher error: %v", err)
		}
	}()

	sweeper := worker.NewSweeper(engine, cfg.Business.SweepInterval)
	go func() {
		if err := sweeper.Run(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Reservation sweeper error: %v", err)
		}
	}()

	kitchen := projection.NewKitchen(redisClient)
	kitchenConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.KitchenGroup)
	kitchenWorker := worker.NewProjectionWorker("kitchen", kitchenConsumer, kitchen.HandleEvent, worker.KitchenEventTypes...)
	go func() {
		if err := kitchenWorker.Start(workerCtx); err != nil {
			log.Printf("Kitchen projection worker error: %v", err)
		}
	}()

	activeOrders := projection.NewActiveOrders(redisClient)
	billingConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.BillingGroup)
	billingWorker := worker.NewProjectionWorker("active_orders", billingConsumer, activeOrders.HandleEvent, worker.BillingEventTypes...)
	go func() {
		if err := billingWorker.Start(workerCtx); err != nil {
			log.Printf("Active orders projection worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, menuService, kitchen, activeOrders, cfg.Auth.JWTSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	kitchenWorker.Stop()
	billingWorker.Stop()

	log.Println("Server exited")
}
