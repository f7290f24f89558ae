package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	c "github.com/fjod/partshop/cart-service/internal/cache"
	h "github.com/fjod/partshop/cart-service/internal/http"
	"github.com/fjod/partshop/cart-service/internal/poller"
	"github.com/fjod/partshop/cart-service/internal/repository"
	s "github.com/fjod/partshop/cart-service/internal/service"
	"github.com/fjod/partshop/pkg/logger"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	CacheTTL        time.Duration
	KafkaBrokers    []string
	OrdersTopic     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

func loadConfig() *Config {
	var brokers []string
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		brokers = strings.Split(v, ",")
	}
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8082"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		CacheTTL:        getDuration("CART_CACHE_TTL", c.DefaultTTL),
		KafkaBrokers:    brokers,
		OrdersTopic:     getEnv("ORDERS_TOPIC", poller.DefaultTopic),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
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
	cfg := loadConfig()
	log := logger.New("cart-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}
	log.WithField("database", cfg.MongoDBName).Info("Connected to MongoDB")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	log.Info("Redis ping succeeded")

	service := s.NewCartService(repo, c.NewRedisCache(redisClient, cfg.CacheTTL), log)

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(service, log, cfg.OrdersTopic, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.WithField("topic", cfg.OrdersTopic).Info("Order events poller started")
	} else {
		log.Warn("KAFKA_BROKERS not set, carts are cleared only by the gateway")
	}

	router := h.NewRouter(h.NewCartHandler(service, cfg.RequestTimeout, log), log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "cart-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Cart service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down cart service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("Cart service stopped")
}
