package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/server"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GoChat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the server and blocks until it stops. Returning instead of
// exiting lets deferred cleanup run.
func run() (int, error) {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	logger.Info("Starting GoChat server", "port", cfg.Port, "rooms", cfg.Chat.Rooms)

	var verifier auth.Verifier
	if cfg.Auth.Secret != "" {
		v, err := auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
		if err != nil {
			return exitConfig, fmt.Errorf("auth config: %w", err)
		}
		verifier = v
	} else {
		logger.Warn("AUTH_SECRET not set; all users join unauthenticated")
	}

	hub := server.NewHub(*cfg, verifier, logger, server.NewMetrics())
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-serveErr:
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		if err != nil {
			return exitRuntime, err
		}
		return exitOK, nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, hub, cfg.ShutdownTimeout, logger); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
