// Package main is the entry point for log-watcher.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/whotterre/log-watcher/internal/config"
	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/status"
	"github.com/whotterre/log-watcher/internal/watcher"
)

// statusShutdownTimeout bounds how long in-flight status requests may
// delay process exit.
const statusShutdownTimeout = 10 * time.Second

// loadEnvFiles loads .env from standard locations.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/log-watcher/.env first
	configEnv := filepath.Join(homeDir, ".config", "log-watcher", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	loadEnvFiles()

	fs := flag.NewFlagSet("log-watcher", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	logPath := fs.String("log-path", "", "access log to tail (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:]) // ExitOnError handles errors

	if *showVersion {
		PrintVersion()
		return
	}

	// Bootstrap logging so configuration errors are reported consistently.
	monitoring.Global(loggerConfig(*debug, "auto"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}
	if *debug {
		cfg.Debug = true
	}

	// Reconfigure with the loaded settings.
	lc := loggerConfig(cfg.Debug, cfg.LogFormat)
	monitoring.Global(lc)
	logger := monitoring.New(lc)

	log.Info().
		Str("version", Version).
		Str("log_path", cfg.LogPath).
		Bool("notify_enabled", cfg.NotifyEnabled()).
		Msg("log-watcher starting")

	w, err := watcher.New(cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.New(cfg.StatusAddr, Version, w, logger.Component("status"))
		go func() {
			if err := statusSrv.Start(); err != nil {
				log.Error().Err(err).Msg("status server error")
			}
		}()
	}

	runErr := w.Run(ctx)

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown error")
		}
		shutdownCancel()
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("log-watcher exited with error")
		os.Exit(1)
	}
	log.Info().Msg("log-watcher stopped")
}

// loggerConfig maps the debug flag and configured format onto logger settings.
func loggerConfig(debug bool, format string) monitoring.LoggerConfig {
	level := "info"
	if debug {
		level = "debug"
	}
	return monitoring.LoggerConfig{
		Level:  level,
		Format: resolveFormat(format),
		Output: "stdout",
	}
}

// resolveFormat maps "auto" to console output on a TTY and JSON otherwise,
// so interactive runs stay readable and piped output stays parseable.
func resolveFormat(format string) string {
	if format == "" || format == "auto" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return "console"
		}
		return "json"
	}
	return format
}
