// Command sessionguard-server serves the credential lifecycle over HTTP.
//
// Configuration comes from .env, the YAML file named by
// SESSIONGUARD_CONFIG_FILE and the environment. DATABASE_URL selects the
// store: postgres://... or sqlite://<path>.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/internal/config"
	"github.com/MrEthical07/sessionguard/internal/telemetry"
	"github.com/MrEthical07/sessionguard/mail"
	"github.com/MrEthical07/sessionguard/mail/smtp"
	"github.com/MrEthical07/sessionguard/metrics/export/prometheus"
	"github.com/MrEthical07/sessionguard/store/sqlstore"
	"github.com/MrEthical07/sessionguard/transport/httpapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sessionguard-server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(initCtx, cfg.Telemetry.OTelEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	st, err := sqlstore.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(initCtx); err != nil {
		return err
	}

	builder := sessionguard.New().
		WithConfig(engineCfg).
		WithStore(st).
		WithLogger(logger)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(initCtx).Err(); err != nil {
			return err
		}
		builder.WithRedis(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set, sign-in and current-password throttle disabled")
	}

	if cfg.SMTP.Host != "" {
		mailer, err := smtp.New(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Product:  cfg.SMTP.Product,
		})
		if err != nil {
			return err
		}
		builder.WithMailer(mailer)
	} else {
		builder.WithMailer(mail.LogMailer{Logger: logger})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink := sessionguard.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer sink.Close()
		builder.WithAuditSink(sink)
	} else {
		builder.WithAuditSink(sessionguard.NewSlogSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout
	e.Server.ReadHeaderTimeout = cfg.HTTP.ReadHeaderTimeout

	httpapi.Register(e, &httpapi.Deps{
		AuthHandler: &httpapi.AuthHTTP{Engine: engine, Logger: logger},
		Metrics:     prometheus.New(engine).Handler(),
		Ready:       st.DB().PingContext,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
	return nil
}
