package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"zoomgo/internal/config"
	handlers "zoomgo/internal/handlers/shared"
	"zoomgo/internal/services"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/websocket"
	"zoomgo/routes"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		Colors:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize dependencies")
	}
	defer deps.Close()

	authn := auth.ContextAuthenticator{}
	policy := services.StandardProfilePolicy()
	ledger := services.NewBookingLedger(deps.Store, authn, appLogger)
	profiles := services.NewProfileService(deps.Store, authn, policy, appLogger)
	notifier := services.NewBookingNotifier(profiles, policy, deps.SMS, appLogger, deps.Push...)

	hub := websocket.NewHub(appLogger)
	go hub.Run(ctx)

	wsHandler := websocket.NewHandler(hub, websocket.Config{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		SendBuffer:        cfg.WebSocket.SendBuffer,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, appLogger)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Fatal("Invalid trusted proxies")
	}

	timeout := cfg.Ledger.RequestTimeout
	routes.SetupRoutes(router, routes.Handlers{
		Bookings: handlers.NewBookingHandler(ledger, notifier, hub, timeout, appLogger),
		Profiles: handlers.NewProfileHandler(profiles, notifier, timeout, appLogger),
		Streams:  handlers.NewStreamHandler(ledger, wsHandler, appLogger),
		Health:   handlers.NewHealthHandler(deps.HealthChecks, 0),
	}, routes.Options{
		Verifier:       deps.Verifier,
		RateLimiter:    deps.RateLimiter(),
		RateLimit:      cfg.Security.RateLimitPerMinute,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		Logger:         appLogger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(map[string]interface{}{
			"addr":   server.Addr,
			"store":  cfg.Ledger.Store,
			"notify": cfg.Ledger.Notify,
			"auth":   cfg.Security.AuthProvider,
		}).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Graceful shutdown failed")
	}
}
