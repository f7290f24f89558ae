package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/fjod/partshop/api-gateway/internal/clients"
	h "github.com/fjod/partshop/api-gateway/internal/http"
	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
)

type Config struct {
	HTTPPort           string
	ProductServiceURL  string
	CartServiceURL     string
	OrdersServiceURL   string
	JWTSecret          string
	LogLevel           string
	CallTimeout        time.Duration
	SubmitTimeout      time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	SessionTTL         time.Duration
	BreakerMaxFailures uint32
	MaxRequestBodySize int64
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		ProductServiceURL:  getEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		CartServiceURL:     getEnv("CART_SERVICE_URL", "http://localhost:8082"),
		OrdersServiceURL:   getEnv("ORDERS_SERVICE_URL", "http://localhost:8083"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CallTimeout:        getDuration("CALL_TIMEOUT", 5*time.Second),
		SubmitTimeout:      getDuration("ORDER_SUBMIT_TIMEOUT", checkout.DefaultSubmitTimeout),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    10 * time.Second,
		SessionTTL:         getDuration("SESSION_TTL", session.DefaultIdleTTL),
		BreakerMaxFailures: uint32(getInt("BREAKER_MAX_FAILURES", 5)),
		MaxRequestBodySize: 1 << 20, // 1MB
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

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	log := logger.New("api-gateway", cfg.LogLevel)

	newClient := func(name, url string, timeout time.Duration) *apiclient.Client {
		return apiclient.New(apiclient.Config{
			Name:        name,
			BaseURL:     url,
			Timeout:     timeout,
			MaxFailures: cfg.BreakerMaxFailures,
		})
	}
	catalog := apiclient.NewCatalogClient(newClient("product-service", cfg.ProductServiceURL, cfg.CallTimeout))
	carts := clients.NewCartClient(newClient("cart-service", cfg.CartServiceURL, cfg.CallTimeout))
	// order creation is bounded by the checkout submit timeout, not the per-call one
	orders := clients.NewOrdersClient(newClient("orders-service", cfg.OrdersServiceURL, cfg.SubmitTimeout))

	sessions := session.NewRegistry(func(s *session.Session) *checkout.Flow {
		flowLog := log.WithField("session_id", s.ID)
		return checkout.NewFlow(orders,
			checkout.WithUserID(s.Owner()),
			checkout.WithSubmitTimeout(cfg.SubmitTimeout),
			checkout.WithLogger(flowLog),
			checkout.WithPaymentObserver(func(res checkout.PaymentResult) {
				flowLog.WithField("order_number", res.OrderNumber).
					WithField("payment_status", res.Status).
					Debug("Payment task finished")
			}),
		)
	}, cfg.SessionTTL, session.DefaultCleanupInterval, log)
	defer sessions.Close()

	router := h.NewRouter(h.RouterConfig{
		Catalog:        catalog,
		Carts:          carts,
		Orders:         orders,
		Auth:           session.NewAuthenticator(cfg.JWTSecret),
		Sessions:       sessions,
		Log:            log,
		CallTimeout:    cfg.CallTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})

	handler := http.MaxBytesHandler(router, cfg.MaxRequestBodySize)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(handler, "api-gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("API Gateway starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited")
}
