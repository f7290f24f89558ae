package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/partshop/pkg/logger"
	h "github.com/fjod/partshop/product-service/internal/http"
	"github.com/fjod/partshop/product-service/internal/repository"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	log := logger.New("product-service", getEnv("LOG_LEVEL", "info"))

	dbPath := getEnv("DB_PATH", "./internal/repository/products.db")
	migrationsPath := getEnv("MIGRATIONS_PATH", "./internal/repository/migrations")
	port := getEnv("HTTP_PORT", "8081")

	repo, err := repository.NewRepository(dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open catalog database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(migrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.Info("Migrations completed successfully")

	router := h.NewRouter(h.NewProductHandler(repo, 5*time.Second, log), log)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      otelhttp.NewHandler(router, "product-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Product service listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down product service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("Product service stopped")
}
