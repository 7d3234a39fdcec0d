package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merchant-admin/internal/cache"
	"merchant-admin/internal/config"
	"merchant-admin/internal/db"
	"merchant-admin/internal/logger"
	"merchant-admin/internal/metrics"
	"merchant-admin/internal/router"
	"merchant-admin/internal/services"
	"merchant-admin/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("Uygulama başlıyor")

	database, err := db.InitDB(cfg.DBUrl, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Veritabanına bağlanılamadı")
	}
	defer database.Close()

	if err := db.RunMigrations(database, log); err != nil {
		log.Fatal().Err(err).Msg("Migration başarısız")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	auditService := services.NewAuditService(database, log)
	merchantService := services.NewMerchantService(database, log, auditService)
	operatorService := services.NewOperatorService(database, log)
	authService := services.NewAuthService(cfg.JWTSecret, log)

	var backend store.Backend = merchantService
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis kullanılamıyor, önbellek devre dışı")
		} else {
			defer client.Close()
			backend = cache.NewMerchantCache(client, merchantService, cfg.CacheTTL, log)
		}
	}

	merchantStore := store.New(backend, cfg.StoreOpTimeout, log, m)
	defer merchantStore.Close()

	handler := router.SetupRouter(router.Dependencies{
		Store:     merchantStore,
		Merchants: merchantService,
		Audit:     auditService,
		Operators: operatorService,
		Auth:      authService,
		Metrics:   m,
		Gatherer:  registry,
		PageSize:  cfg.PageSize,
		PageWait:  cfg.PageWait,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Msgf("Sunucu %s portunda çalışıyor", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Sunucu hatası")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Kapatma sinyali alındı...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown başarısız")
	}

	log.Info().Msg("Sunucu kapatıldı")
}
