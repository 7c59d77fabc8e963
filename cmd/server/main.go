// Package main is the entry point for the DevBoard server. It reads
// configuration from the environment, builds the logger, and hands off to
// internal/server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xdest/devboard/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/devboard.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// SESSION_SECRET signs session cookies; VAULT_SECRET encrypts stored
	// GitHub tokens. Generate both with e.g. `openssl rand -hex 32`. Neither
	// has a usable default — refusing to start beats running with a guessable
	// key.
	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		logger.Error("SESSION_SECRET is required")
		os.Exit(1)
	}
	vaultSecret := os.Getenv("VAULT_SECRET")
	if vaultSecret == "" {
		logger.Error("VAULT_SECRET is required")
		os.Exit(1)
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = fmt.Sprintf("http://localhost:%d", port)
	}

	syncPeriod := time.Duration(0)
	if periodStr := os.Getenv("SYNC_PERIOD"); periodStr != "" {
		var err error
		syncPeriod, err = time.ParseDuration(periodStr)
		if err != nil {
			logger.Error("invalid SYNC_PERIOD value", slog.String("value", periodStr))
			os.Exit(1)
		}
	}

	cfg := server.Config{
		Port:               port,
		DBPath:             dbPath,
		SessionSecret:      sessionSecret,
		VaultSecret:        vaultSecret,
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		AppURL:             appURL,
		SyncPeriod:         syncPeriod,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
