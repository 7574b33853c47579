package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/config"
	authControllers "github.com/medilink/clinic-queue-backend/internal/auth/controllers"
	authRoutes "github.com/medilink/clinic-queue-backend/internal/auth/routes"
	authServices "github.com/medilink/clinic-queue-backend/internal/auth/services"
	"github.com/medilink/clinic-queue-backend/internal/events"
	queueControllers "github.com/medilink/clinic-queue-backend/internal/queue/controllers"
	queueRoutes "github.com/medilink/clinic-queue-backend/internal/queue/routes"
	queueServices "github.com/medilink/clinic-queue-backend/internal/queue/services"
	"github.com/medilink/clinic-queue-backend/internal/queue/store"
	stationControllers "github.com/medilink/clinic-queue-backend/internal/station/controllers"
	stationRoutes "github.com/medilink/clinic-queue-backend/internal/station/routes"
	stationServices "github.com/medilink/clinic-queue-backend/internal/station/services"
	"github.com/medilink/clinic-queue-backend/pkg/storage/mariadb"
	"github.com/medilink/clinic-queue-backend/ws"
)

func main() {
	cfg := config.LoadConfig()
	db := mariadb.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Embedded NATS bus carries queue events to the broadcast layer.
	bus, err := events.NewEmbeddedBus(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start event bus")
	}
	defer bus.Shutdown()

	queueStore := store.NewMariaDBStore(db)
	queueService := queueServices.NewQueueService(queueStore, bus)
	stationService := stationServices.NewStationService(db)
	authService := authServices.NewAuthService(db)

	broadcaster := queueServices.NewBroadcaster()
	go broadcaster.Run(ctx)
	if err := bus.Consume(ctx, broadcaster.HandleEvent); err != nil {
		log.Fatal().Err(err).Msg("failed to attach broadcaster to event bus")
	}

	hub := ws.NewHub(broadcaster)
	go hub.Run()

	queueController := queueControllers.NewQueueController(queueService, stationService)
	stationController := stationControllers.NewStationController(stationService)
	authController := authControllers.NewAuthController(authService)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	queueRoutes.RegisterQueueRoutes(e, queueController, hub)
	stationRoutes.RegisterStationRoutes(e, stationController)
	authRoutes.RegisterAuthRoutes(e, authController)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	<-sigChan
	log.Info().Msg("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped cleanly")
}
