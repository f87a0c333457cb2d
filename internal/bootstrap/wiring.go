package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/mentorbooking/config"
	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/migrator"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"github.com/Domenick1991/mentorbooking/internal/service/slots"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Rules builds the calendar rules from the booking config.
func Rules(cfg config.BookingConfig) (domain.SlotRules, error) {
	loc, err := cfg.Location()
	if err != nil {
		return domain.SlotRules{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return domain.SlotRules{
		Length:   cfg.SlotLength(),
		LeadTime: cfg.LeadTime(),
		Location: loc,
	}, nil
}

func defaultWindow(cfg config.BookingConfig) (domain.OperatingWindow, error) {
	start, err := config.ParseClock(cfg.DefaultWindowStart)
	if err != nil {
		return domain.OperatingWindow{}, err
	}
	end, err := config.ParseClock(cfg.DefaultWindowEnd)
	if err != nil {
		return domain.OperatingWindow{}, err
	}
	return domain.OperatingWindow{StartMinute: start, EndMinute: end}, nil
}

// NewSlotService wires the slot store over pool. cache may be nil.
func NewSlotService(cfg *config.Config, pool repository.DB, cache slots.Cache, logger *zap.Logger) (*slots.SlotService, error) {
	rules, err := Rules(cfg.Booking)
	if err != nil {
		return nil, err
	}
	window, err := defaultWindow(cfg.Booking)
	if err != nil {
		return nil, err
	}

	opts := []slots.SlotServiceOption{slots.WithMentorDefaults(cfg.Booking.DefaultPrice, window)}
	if cache != nil {
		opts = append(opts, slots.WithCache(cache))
	}
	timeout := cfg.Database.QueryTimeout()
	return slots.NewSlotService(
		repository.NewSlotRepository(pool, timeout),
		repository.NewMentorRepository(pool, timeout),
		rules,
		cfg.Booking.HoldTTL(),
		logger,
		opts...,
	), nil
}

// ConnectPostgres opens the pool, checks it and applies migrations when
// database.auto_migrate is set.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if !cfg.AutoMigrate {
		return pool, nil
	}

	m, err := migrator.New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer m.Close()
	if err := m.Run(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
