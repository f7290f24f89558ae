package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	h "github.com/fjod/partshop/orders-service/internal/http"
	"github.com/fjod/partshop/orders-service/internal/payment"
	"github.com/fjod/partshop/orders-service/internal/publisher"
	"github.com/fjod/partshop/orders-service/internal/repository"
	s "github.com/fjod/partshop/orders-service/internal/service"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
)

type Config struct {
	HTTPPort          string
	DB                repository.Credentials
	ProductServiceURL string
	CallTimeout       time.Duration
	KafkaBrokers      []string
	OrdersTopic       string
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string
}

func loadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, err
	}
	var brokers []string
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		brokers = strings.Split(v, ",")
	}
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8083"),
		DB: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              port,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "partshop"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		CallTimeout:       getDuration("CALL_TIMEOUT", 3*time.Second),
		KafkaBrokers:      brokers,
		OrdersTopic:       getEnv("ORDERS_TOPIC", publisher.DefaultTopic),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	log := logger.New("orders-service", getEnv("LOG_LEVEL", "info"))
	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid DB_PORT")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewRepository(ctx, &cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.WithField("database", cfg.DB.DBName).Info("Database migrations completed")

	catalog := apiclient.NewCatalogClient(apiclient.New(apiclient.Config{
		Name:    "product-service",
		BaseURL: cfg.ProductServiceURL,
		Timeout: cfg.CallTimeout,
	}))
	service := s.NewOrderService(repo, catalog, payment.RandomCharger{}, log)

	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		p := publisher.NewOutboxPoller(repo, log, cfg.OrdersTopic, cfg.KafkaBrokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
			if err := p.Close(); err != nil {
				log.WithError(err).Warn("kafka writer close failed")
			}
		}()
		log.WithField("topic", cfg.OrdersTopic).Info("Outbox publisher started")
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	router := h.NewRouter(h.NewOrderHandler(service, cfg.RequestTimeout, log), log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "orders-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Orders service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down orders service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	wg.Wait()
	log.Info("Orders service stopped")
}
