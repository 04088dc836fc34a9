package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freekieb7/helios/config"
	"github.com/freekieb7/helios/content"
	"github.com/freekieb7/helios/server"
	"github.com/freekieb7/helios/telemetry"
)

const name = "github.com/freekieb7/helios"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, args []string) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if len(args) > 0 {
		if cfg, err = config.Load(args[0]); err != nil {
			return err
		}
	}

	if cfg.TelemetryEnabled {
		var shutdown telemetry.ShutdownFunc
		if shutdown, err = telemetry.Setup(ctx, cfg.ServiceName); err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = errors.Join(err, shutdown(flushCtx))
		}()
	}

	logger := telemetry.NewLogger(name, cfg.TelemetryEnabled)

	handler, err := content.New(cfg, content.WithLogger(logger))
	if err != nil {
		return err
	}
	defer handler.Close()

	srv, err := server.New(cfg, handler, server.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("listening", "http", cfg.HTTPAddr(), "https_enabled", cfg.HTTPSEnabled, "root", cfg.ServerRoot)
	return srv.ListenAndServe(ctx)
}
