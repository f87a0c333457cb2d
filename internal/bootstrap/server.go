package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/mentorbooking/api"
	"github.com/Domenick1991/mentorbooking/config"
	"github.com/Domenick1991/mentorbooking/internal/service/booking"
	"github.com/Domenick1991/mentorbooking/internal/service/cart"
	"github.com/Domenick1991/mentorbooking/internal/service/slots"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

const swaggerFile = "mentorship.swagger.json"

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Slots       slots.SlotUseCase
	Carts       cart.CartUseCase
	Bookings    booking.BookingUseCase
	Idempotency api.IdempotencyStore
	Health      map[string]HealthCheck
}

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails.
func Run(ctx context.Context, cfg *config.Config, svc Services, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           NewRouter(cfg, svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSeconds)*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func NewRouter(cfg *config.Config, svc Services, logger *zap.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.RequestID(), api.RequestLogger(logger), gin.Recovery())

	router.GET("/healthz", healthHandler(svc.Health))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFile("/swagger/"+swaggerFile, filepath.Join(cfg.HTTP.SwaggerDir, swaggerFile))
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/"+swaggerFile))))
	}

	authed := router.Group("/api", api.Authenticate(cfg.Auth.JWTSecret))
	api.NewSlotHandler(svc.Slots, logger).Register(authed.Group("/slots"))
	api.NewCartHandler(svc.Carts, logger).Register(authed.Group("/carts"))

	var checkout []gin.HandlerFunc
	if svc.Idempotency != nil {
		checkout = append(checkout, api.Idempotency(svc.Idempotency, cfg.Booking.IdempotencyTTL(), logger))
	}
	api.NewBookingHandler(svc.Bookings, logger).Register(authed.Group("/bookings"), checkout...)

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
	}
}
