package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"unitrader/internal/app"
	"unitrader/internal/config"
	"unitrader/internal/logger"
)

func main() {
	cfgPath := os.Getenv("UNITRADER_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	cfg := watcher.Current()

	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, accounts=%d)", cfg.App.Env, len(cfg.Accounts))

	a, err := app.New(watcher)
	if err != nil {
		log.Fatalf("initializing application failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("run failed: %v", err)
	}
	logger.Infof("shutdown complete")
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
