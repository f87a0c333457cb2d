package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Domenick1991/mentorbooking/config"
	"github.com/Domenick1991/mentorbooking/internal/bootstrap"
	"github.com/Domenick1991/mentorbooking/internal/cache"
	"github.com/Domenick1991/mentorbooking/internal/kafka"
	"github.com/Domenick1991/mentorbooking/internal/logger"
	"github.com/Domenick1991/mentorbooking/internal/notify"
	"github.com/Domenick1991/mentorbooking/internal/service/slots"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.New(cfg.Env).With(zap.String("component", "worker"))
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.Database, lg)
	if err != nil {
		lg.Fatal("postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.SlotsCacheTTL())
	var slotCache slots.Cache
	if err := redisCache.Ping(ctx); err != nil {
		lg.Warn("redis unavailable, swept slots will not invalidate listings", zap.Error(err))
	} else {
		slotCache = redisCache
	}

	slotService, err := bootstrap.NewSlotService(cfg, pool, slotCache, lg)
	if err != nil {
		lg.Fatal("slot service", zap.Error(err))
	}

	rules, err := bootstrap.Rules(cfg.Booking)
	if err != nil {
		lg.Fatal("booking rules", zap.Error(err))
	}
	sender := notify.NewSender(lg, rules.Location)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, lg)
	defer consumer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.ConsumeEvents(ctx, sender.Send); err != nil {
			lg.Error("consumer stopped", zap.Error(err))
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepSeconds) * time.Second)
	defer sweepTicker.Stop()

	lg.Info("worker started",
		zap.String("topic", cfg.Kafka.NotificationsTopic),
		zap.Int("sweep_seconds", cfg.Worker.ExpirationSweepSeconds))

	for {
		select {
		case <-sweepTicker.C:
			if _, err := slotService.SweepExpiredHolds(ctx); err != nil {
				lg.Warn("expiry sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			lg.Info("shutting down worker")
			<-done
			return
		}
	}
}
