package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sgpd/sgpd/internal/config"
	"github.com/sgpd/sgpd/internal/domain/clinical"
	"github.com/sgpd/sgpd/internal/domain/identity"
	"github.com/sgpd/sgpd/internal/domain/scheduling"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/middleware"
	"github.com/sgpd/sgpd/internal/platform/notification"
	"github.com/sgpd/sgpd/internal/platform/outbox"
	"github.com/sgpd/sgpd/internal/platform/validate"
)

const tokenIssuer = "sgpd"

type services struct {
	identity      *identity.Service
	scheduling    *scheduling.Service
	clinical      *clinical.Service
	notifications *notification.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *services {
	tx := db.NewTxManager(pool)
	notifications := notification.NewService(notification.NewRepoPG(pool), outbox.NewPGStore(pool), tx)

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), tokenIssuer, cfg.JWTTTL)
	identitySvc := identity.NewService(identity.NewUserRepo(pool), identity.NewPatientRepo(pool),
		identity.NewDoctorRepo(pool), tx, notifications, tokens, cfg.BcryptCost,
		logger.With().Str("domain", "identity").Logger())

	schedulingSvc := scheduling.NewService(scheduling.NewRequestRepoPG(pool), scheduling.NewAppointmentRepoPG(pool),
		identitySvc, notifications, tx, logger.With().Str("domain", "scheduling").Logger())

	clinicalSvc := clinical.NewService(clinical.NewHistoryRepoPG(pool), clinical.NewTreatmentRepoPG(pool),
		schedulingSvc, identitySvc, notifications, tx, logger.With().Str("domain", "clinical").Logger())

	return &services{
		identity:      identitySvc,
		scheduling:    schedulingSvc,
		clinical:      clinicalSvc,
		notifications: notifications,
	}
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, svcs *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }, logger))

	jwtCfg := auth.JWTConfig{Issuer: tokenIssuer, SigningKey: []byte(cfg.JWTSecret)}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}
	api := e.Group("/api", authMW)

	identity.NewHandler(svcs.identity).RegisterRoutes(api)
	scheduling.NewHandler(svcs.scheduling).RegisterRoutes(api)
	clinical.NewHandler(svcs.clinical).RegisterRoutes(api)
	notification.NewHandler(svcs.notifications).RegisterRoutes(api)

	return e
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger := newLogger(cfg)
	logger.Info().Msg("connected to database")

	e := newServer(cfg, pool, newServices(cfg, pool, logger), logger)

	relayDone := make(chan struct{})
	if cfg.RelayEnabled() {
		go func() {
			defer close(relayDone)
			if err := runRelay(ctx, cfg, pool, logger); err != nil {
				logger.Error().Err(err).Msg("outbox relay exited")
			}
		}()
	} else {
		close(relayDone)
		logger.Warn().Msg("KAFKA_BROKERS not set, outbox relay disabled")
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		stop()
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-relayDone
	logger.Info().Msg("server stopped")
	return nil
}
