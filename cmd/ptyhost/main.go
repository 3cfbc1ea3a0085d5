package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/api"
	"github.com/PiranhaCodes/ptyhost/internal/config"
	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/PiranhaCodes/ptyhost/internal/tracing"
	"github.com/rs/zerolog"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

// hostLogger tags daemon lines the way the pty and api packages tag theirs.
func hostLogger() zerolog.Logger {
	return logging.Component("host")
}

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file (.yml or .toml)")
	socketFlag := flag.String("socket", "", "Path to Unix socket (overrides config)")
	listenFlag := flag.String("listen", "", "WebSocket listen address (overrides config)")
	flag.Parse()

	logging.ConfigureRuntime()
	log := hostLogger()

	cfg, err := config.Load(*cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("config", *cfgPath).Msg("config file not found, using defaults")
	case err != nil:
		log.Fatal().Err(err).Msg("failed to load config")
	default:
		log.Info().Str("config", *cfgPath).Msg("config loaded")
	}
	logging.SetLevel(cfg.LogLevel)

	if *socketFlag != "" {
		cfg.Socket = *socketFlag
	}
	if *listenFlag != "" {
		cfg.Listen = *listenFlag
	}

	socketPath, err := config.ExpandPath(cfg.Socket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to expand socket path")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create socket directory")
	}

	if cfg.TraceFile != "" {
		traceFile, err := config.ExpandPath(cfg.TraceFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to expand trace file path")
		}
		if err := tracing.Init("ptyhost", version, traceFile); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracing")
		}
	}

	sessions, err := cfg.Sessions()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session settings")
	}

	hub := api.NewHub(cfg.EventBuffer)
	manager := pty.NewManager(sessions, hub)
	handler := api.NewHandler(manager)

	server := api.NewServer(socketPath, handler, hub)
	if err := server.Listen(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
	go func() {
		if err := server.Serve(); err != nil {
			log.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	var gateway *api.Gateway
	if cfg.Listen != "" {
		gateway = api.NewGateway(cfg.Listen, handler, hub, cfg.AllowedOrigins)
		go func() {
			if err := gateway.Start(); err != nil {
				log.Error().Err(err).Msg("websocket gateway failed")
			}
		}()
	}

	log.Info().Str("version", version).Str("socket", socketPath).Msg("ptyhost started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Stringer("signal", sig).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Sessions go first so connected subscribers still see their exit events.
	if err := manager.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("session shutdown incomplete")
	}
	server.Stop()
	if gateway != nil {
		if err := gateway.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("gateway shutdown failed")
		}
	}
	hub.Close()
	if err := tracing.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("trace flush failed")
	}
	log.Info().Msg("shutdown complete")
}
