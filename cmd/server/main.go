package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/reachcraft/deliverability/internal/api"
	"github.com/reachcraft/deliverability/internal/config"
	"github.com/reachcraft/deliverability/internal/delivery"
	"github.com/reachcraft/deliverability/internal/dnscheck"
	"github.com/reachcraft/deliverability/internal/pkg/logger"
	"github.com/reachcraft/deliverability/internal/repository/postgres"
	"github.com/reachcraft/deliverability/internal/sendlimit"
	"github.com/reachcraft/deliverability/internal/smtpprobe"
	"github.com/reachcraft/deliverability/internal/spamcheck"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	cancelPing()

	deliveryRepo := postgres.NewDeliveryRepo(db)
	verificationRepo := postgres.NewVerificationRepo(db)

	deliverySvc := delivery.NewServiceWithThresholds(deliveryRepo, delivery.PauseThresholds{
		BounceRate:    cfg.Health.BounceRatePause,
		ComplaintRate: cfg.Health.ComplaintRatePause,
		MinSent:       cfg.Health.MinSentForPause,
	})

	handlers := &api.Handlers{
		Delivery:   deliverySvc,
		Accounts:   deliveryRepo,
		Calculator: sendlimit.NewCalculator(deliveryRepo),
		Verifier:   dnscheck.NewChecker(verificationRepo, cfg.DNS.Timeout()),
		Blacklist:  dnscheck.NewBlacklistChecker(verificationRepo),
		Prober:     smtpprobe.NewProber(cfg.SMTP.ConnectTimeout()),
		Scorer:     spamcheck.NewScorer(cfg.Spam.Threshold),
	}

	// Redis is optional: without it the reserve route returns 503 and
	// senders fall back to the calculator's verdict.
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		reserver, err := sendlimit.NewReserverFromURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("redis connection failed, send reservations disabled", "err", err)
		} else {
			defer reserver.Close()
			handlers.Reserver = reserver
			logger.Info("send reservations enabled")
		}
	}

	var monitor *delivery.Monitor
	if cfg.Monitor.Enabled {
		monitor = delivery.NewMonitor(deliverySvc, cfg.Monitor.Interval())
		monitor.Start()
		defer monitor.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(handlers, nil),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("deliverability service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
