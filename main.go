package main

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulseapp/backend/internal/client"
	"github.com/pulseapp/backend/internal/config"
	"github.com/pulseapp/backend/internal/db"
	"github.com/pulseapp/backend/internal/handler"
	"github.com/pulseapp/backend/internal/metrics"
	"github.com/pulseapp/backend/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	dsn, err := db.BuildPostgresURL(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to build postgres URL: %v", err)
	}
	if err := db.RunMigrations(dsn); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := db.NewPostgres(pool)

	verifier, err := client.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		log.Fatalf("Failed to init token verifier: %v", err)
	}

	authSvc, err := service.NewAuthService(store, verifier, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to init auth service: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	loginRate, err := strconv.ParseFloat(cfg.Auth.LoginRateLimit, 64)
	if err != nil || loginRate <= 0 {
		log.Fatalf("Invalid LOGIN_RATE_LIMIT: %q", cfg.Auth.LoginRateLimit)
	}
	loginBurst, err := strconv.Atoi(cfg.Auth.LoginRateBurst)
	if err != nil || loginBurst <= 0 {
		log.Fatalf("Invalid LOGIN_RATE_BURST: %q", cfg.Auth.LoginRateBurst)
	}
	limiter := handler.NewLoginRateLimiter(loginRate, loginBurst)
	defer limiter.Stop()

	authHandler := handler.NewAuthHandler(authSvc, store, collector)

	router := gin.Default()
	if cfg.Server.AllowedOrigins != "" {
		origins := strings.Split(cfg.Server.AllowedOrigins, ",")
		router.Use(handler.CORSMiddleware(origins, true))
	}

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/auth")
	api.POST("/authenticate", limiter.Middleware(), authHandler.Authenticate)
	api.POST("/logout", authHandler.Logout)
	api.GET("/providers", authHandler.Providers)
	api.GET("/me", handler.RequireSession(authSvc, collector), authHandler.Me)

	log.Printf("Auth API listening on %s", cfg.Server.Addr)
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
