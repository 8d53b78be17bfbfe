package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/handlers"
	"discount-system/internal/kafka"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/redis"
	"discount-system/internal/services"

	"github.com/google/uuid"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	mux      *http.ServeMux
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting discount system server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = app.consumer.Stop()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	_ = app.producer.Close()
	_ = app.redis.Close()
	_ = app.db.Close()
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	channelDirectory := services.NewChannelDirectory(db, redisClient, log, &cfg.Promotion)
	productMatcher := services.NewProductMatcher(db, log)
	taxRateService := services.NewTaxRateService(db, redisClient, log, &cfg.Tax)

	ruleService := services.NewPromotionRuleService(db, log, channelDirectory, productMatcher, producer, &cfg.Promotion)
	orderService := services.NewOrderService(db, log, taxRateService, producer, &cfg.Tax)

	if cfg.Tax.RatesSeedFile != "" {
		if err := taxRateService.SeedFromFile(context.Background(), cfg.Tax.RatesSeedFile); err != nil {
			log.WithError(err).Warn("Failed to seed tax rate table")
		}
	}

	ruleHandler := handlers.NewRuleHandler(ruleService, log)
	orderHandler := handlers.NewOrderHandler(orderService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck)

	registerEventHandlers(consumer, orderService, log)
	consumer.Start()

	mux := setupRoutes(ruleHandler, orderHandler, healthHandler)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
		mux:      mux,
		server:   server,
	}, nil
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(ruleHandler *handlers.RuleHandler, orderHandler *handlers.OrderHandler, healthHandler *handlers.HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Promotion rule endpoints
	mux.HandleFunc("/api/promotions/", corsMiddleware(ruleHandler.PromotionRules))
	mux.HandleFunc("/api/rules/", corsMiddleware(ruleHandler.Rule))

	// Order endpoints
	mux.HandleFunc("/api/orders/", corsMiddleware(orderHandler.Order))

	return mux
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, orderService *services.OrderService, log *logger.Logger) {
	consumer.RegisterHandler(models.EventTypeOrderRecalculationRequested, func(ctx context.Context, event *models.Event) error {
		raw, ok := event.Data["order_id"].(string)
		if !ok {
			log.WithField("event_id", event.ID).Warn("Order recalculation event without order_id")
			return nil
		}
		orderID, err := uuid.Parse(raw)
		if err != nil {
			log.WithError(err).WithField("event_id", event.ID).Warn("Order recalculation event with malformed order_id")
			return nil
		}

		_, _, err = orderService.RecalculateOrder(ctx, orderID)
		return err
	})

	consumer.RegisterHandler(models.EventTypeRuleCreated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing rule created event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeRuleUpdated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing rule updated event")
		return nil
	})
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
