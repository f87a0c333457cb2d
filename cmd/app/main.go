package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Domenick1991/mentorbooking/config"
	"github.com/Domenick1991/mentorbooking/internal/bootstrap"
	"github.com/Domenick1991/mentorbooking/internal/cache"
	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/kafka"
	"github.com/Domenick1991/mentorbooking/internal/logger"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"github.com/Domenick1991/mentorbooking/internal/service/booking"
	"github.com/Domenick1991/mentorbooking/internal/service/cart"
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

	lg := logger.New(cfg.Env)
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.Database, lg)
	if err != nil {
		lg.Fatal("postgres", zap.Error(err))
	}
	defer pool.Close()

	health := map[string]bootstrap.HealthCheck{"postgres": pool.Ping}

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.SlotsCacheTTL())
	var slotCache slots.Cache
	var bookingCache booking.SlotCache
	if err := redisCache.Ping(ctx); err != nil {
		lg.Warn("redis unavailable, running without slot cache and idempotency", zap.Error(err))
	} else {
		slotCache, bookingCache = redisCache, redisCache
		health["redis"] = redisCache.Ping
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, lg)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		lg.Warn("kafka unavailable, booking events will be dropped", zap.Error(err))
	}

	rules, err := bootstrap.Rules(cfg.Booking)
	if err != nil {
		lg.Fatal("booking rules", zap.Error(err))
	}
	slotService, err := bootstrap.NewSlotService(cfg, pool, slotCache, lg)
	if err != nil {
		lg.Fatal("slot service", zap.Error(err))
	}

	timeout := cfg.Database.QueryTimeout()
	cartRepo := repository.NewCartRepository(pool, timeout)
	cartService := cart.NewCartService(cartRepo, slotService, rules, lg)

	bookingOpts := []booking.BookingServiceOption{
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithInitialStatus(domain.BookingStatus(cfg.Booking.InitialStatus)),
	}
	if bookingCache != nil {
		bookingOpts = append(bookingOpts, booking.WithCache(bookingCache))
	}
	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool, timeout),
		cartRepo,
		repository.NewSlotRepository(pool, timeout),
		producer,
		cfg.Kafka.BookingTopic,
		rules,
		lg,
		bookingOpts...,
	)

	services := bootstrap.Services{
		Slots:    slotService,
		Carts:    cartService,
		Bookings: bookingService,
		Health:   health,
	}
	if slotCache != nil {
		services.Idempotency = redisCache
	}

	if err := bootstrap.Run(ctx, cfg, services, lg); err != nil {
		lg.Fatal("server error", zap.Error(err))
	}
}
