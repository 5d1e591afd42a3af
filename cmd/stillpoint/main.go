package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
	"github.com/BreatheLabs/stillpoint/pkg/config"
	"github.com/BreatheLabs/stillpoint/pkg/detector"
	handlers "github.com/BreatheLabs/stillpoint/pkg/handlers/http"
	wsHandlers "github.com/BreatheLabs/stillpoint/pkg/handlers/websocket"
	"github.com/BreatheLabs/stillpoint/pkg/infra/httpx"
	infraLogger "github.com/BreatheLabs/stillpoint/pkg/infra/logger"
	"github.com/BreatheLabs/stillpoint/pkg/middleware"
	"github.com/BreatheLabs/stillpoint/pkg/notification"
	"github.com/BreatheLabs/stillpoint/pkg/server"
	"github.com/BreatheLabs/stillpoint/pkg/server/router"
	"github.com/BreatheLabs/stillpoint/pkg/session"
	"github.com/BreatheLabs/stillpoint/pkg/throttle"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger("ingest")

	// Load configuration
	if err := config.Load("./config"); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	clk := clock.New()

	det, err := detector.NewHeuristic(cfg.Detector.Settings)
	if err != nil {
		logger.Fatalf("Failed to initialize detector: %v", err)
	}

	nudgeThrottle := throttle.New(cfg.Engine.MinNudgeInterval)

	// notification sink
	sinkClient := httpx.NewFastHTTPClient(
		httpx.WithTimeout(cfg.Sink.Timeout),
		httpx.WithUserAgent("stillpoint-ingest"),
	)
	sinkBreaker := httpx.NewCircuitBreaker(
		"notification-sink",
		cfg.Sink.BreakerMaxFailures,
		cfg.Sink.BreakerResetTimeout,
	)
	sink := notification.NewHTTPSink(
		notification.HTTPSinkConfig{
			Endpoint: cfg.Sink.Endpoint,
			AuthKey:  cfg.Sink.AuthKey,
			Timeout:  cfg.Sink.Timeout,
		},
		sinkClient,
		sinkBreaker,
		clk,
		logger,
	)

	// session engine
	engine := session.NewManager(
		session.Config{
			SilenceWindow:   cfg.Engine.SilenceWindow,
			CoalesceWindow:  cfg.Engine.CoalesceWindow,
			IdleRetention:   cfg.Engine.IdleRetention,
			SweepInterval:   cfg.Engine.SweepInterval,
			DetectorTimeout: cfg.Engine.DetectorTimeout,
		},
		clk,
		det,
		nudgeThrottle,
		notification.NewTemplateComposer(),
		sink,
		logger,
	)

	//middleware
	middlewareTransport := &middleware.Transport{
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(logger),
		MetricsMiddleware:      middleware.NewMetricsMiddleware(logger),
		AuthMiddleware:         middleware.NewDeviceAuthMiddleware(logger, cfg.Auth.DeviceKey),
	}
	upgradeMiddleware := middleware.NewWebsocketUpgradeMiddleware(logger, cfg.WebSocket.MaxConnections)

	// Handler Transport
	handlerTransport := &handlers.HandlerTransportDTO{
		NotificationWebhookHandler: handlers.NewNotificationWebhookHandler(logger, engine),
		StatusHandler:              handlers.NewStatusHandler(logger, engine, clk),
		SetupStatusHandler:         handlers.NewSetupStatusHandler(logger),
	}

	wsHandlerTransport := &wsHandlers.HandlerTransportDTO{
		StreamHandler: wsHandlers.NewStreamHandler(cfg, logger, engine),
	}

	ingestRouter := router.NewIngestRouter(
		middlewareTransport,
		upgradeMiddleware,
		handlerTransport,
		wsHandlerTransport,
		cfg,
	)

	srv := server.NewIngestServer(server.IngestServerDI{
		Config:  cfg,
		Logger:  logger,
		Routers: []router.ServerRouter{ingestRouter},
	})

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	engine.Stop()
	if w, ok := logger.Out.(io.Closer); ok {
		_ = w.Close()
	}
	fmt.Println("server gracefully stopped")
}
