package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/notify/bridge"
	"github.com/habitflow/habitflow/internal/platform/config"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
	"github.com/habitflow/habitflow/internal/platform/telemetry"
	"github.com/habitflow/habitflow/internal/server"
	"github.com/habitflow/habitflow/internal/social"
)

func main() {
	cfg, err := config.Load("habitflow")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}

	log := logger.New(cfg.Logger)
	log.Info("starting habitflow notification service", "version", cfg.Version, "port", cfg.HTTP.Port)

	m := metrics.New("habitflow")

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}

	bus := notify.NewBus(notify.WithLogger(log), notify.WithMetrics(m))

	var redisBridge *bridge.RedisBridge
	if cfg.Redis.Addr != "" {
		redisBridge, err = bridge.New(cfg.Redis, bus, log, m)
		if err != nil {
			log.Fatal("failed to connect fan-out bridge", "error", err)
		}
		log.Info("redis fan-out bridge enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	directory := social.NewStaticDirectory()

	opts := []server.Option{
		server.WithConfig(cfg),
		server.WithLogger(log),
		server.WithMetrics(m),
		server.WithBus(bus),
		server.WithDirectory(directory),
		server.WithTelemetry(tel),
	}
	if redisBridge != nil {
		opts = append(opts, server.WithBridge(redisBridge))
	}

	srv, err := server.New(opts...)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("habitflow notification service stopped")
}
