package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CoMPaTech/go-airos/internal/config"
	"github.com/CoMPaTech/go-airos/internal/metrics"
	"github.com/CoMPaTech/go-airos/internal/protocol"
	"github.com/CoMPaTech/go-airos/internal/registry"
	"github.com/CoMPaTech/go-airos/internal/server"
)

const (
	serviceName    = "airos-discovery"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when omitted)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("discovery_port", cfg.Listener.Port),
		slog.String("bind_address", cfg.Listener.BindAddress),
		slog.Duration("scan_duration", cfg.Listener.GetScanDuration()),
		slog.Duration("device_timeout", cfg.Registry.GetDeviceTimeout()),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize device registry
	reg := registry.New(logger, appMetrics, cfg.Registry.GetDeviceTimeout(), cfg.Registry.GetCleanupInterval())
	logger.Info("Device registry initialized",
		slog.Duration("device_timeout", cfg.Registry.GetDeviceTimeout()),
	)

	// Initialize discovery listener; every decoded announcement is merged
	// into the registry.
	listener := server.NewUDPListener(&cfg.Listener, logger, appMetrics, func(src *net.UDPAddr, pkt *protocol.DiscoveryPacket) {
		reg.Record(src.String(), pkt)
	})
	logger.Info("Discovery listener initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, reg, listener, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start discovery listener
	if err := listener.Start(); err != nil {
		logger.Error("Failed to start discovery listener", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for broadcasts...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Listener.BindAddress, cfg.Listener.Port)),
	)

	// Wait for a shutdown signal or the end of the scan window
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-listener.Done():
		logger.Info("Scan window elapsed, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop listener (stop receiving datagrams)
	if err := listener.Stop(); err != nil {
		logger.Error("Error stopping discovery listener", slog.String("error", err.Error()))
	}

	// Stop registry (expiry routine)
	reg.Stop()

	// Get final statistics
	stats := listener.GetStatistics()
	logger.Info("Final discovery statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("packets_decoded", stats.PacketsDecoded),
		slog.Uint64("decode_errors", stats.DecodeErrors),
		slog.Int("devices_tracked", reg.Count()),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
