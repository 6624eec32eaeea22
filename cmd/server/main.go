package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/example/transit-fraud/internal/app"
	"github.com/example/transit-fraud/internal/config"
	"github.com/example/transit-fraud/internal/detector"
	"github.com/example/transit-fraud/internal/dispatch"
	httpapi "github.com/example/transit-fraud/internal/http"
	"github.com/example/transit-fraud/internal/ingest"
	"github.com/example/transit-fraud/internal/logging"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	fxApp := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newStores,
			newProducer,
			dispatch.NewHub,
			newDetector,
			newHTTPServer,
		),
		fx.Invoke(registerHooks),
		fx.NopLogger,
	)

	if err := fxApp.Start(context.Background()); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.ServerConfig) *slog.Logger {
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func newStores(lc fx.Lifecycle, cfg config.ServerConfig, logger *slog.Logger) (*app.Stores, error) {
	stores, err := app.OpenStores(context.Background(), cfg.Stores, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return stores.Close() }})

	if cfg.RunMigrations {
		applied, err := stores.Migrate(context.Background(), cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		logger.Info("migrations applied", "files", applied)
	}
	return stores, nil
}

// newProducer returns nil when no brokers are configured.
func newProducer(lc fx.Lifecycle, cfg config.ServerConfig) *ingest.KafkaProducer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	p := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.SwipeTopic, cfg.AnomalyTopic)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	return p
}

func newDetector(cfg config.ServerConfig, stores *app.Stores, hub *dispatch.Hub, producer *ingest.KafkaProducer, logger *slog.Logger) *detector.Service {
	notifiers := map[string]detector.Notifier{"websocket": hub}
	if producer != nil {
		notifiers["kafka"] = producer
	}
	if cfg.WebhookURL != "" {
		notifiers["webhook"] = dispatch.NewWebhook(cfg.WebhookURL, cfg.WebhookToken)
	}
	return stores.Detector(notifiers, logger)
}

func newHTTPServer(cfg config.ServerConfig, det *detector.Service, stores *app.Stores, hub *dispatch.Hub, producer *ingest.KafkaProducer, logger *slog.Logger) *http.Server {
	deps := httpapi.Deps{
		Detector:     det,
		Rings:        stores.Linker(logger),
		Ledger:       stores.Ledger,
		Alerts:       hub,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	}
	if producer != nil {
		deps.Publisher = producer
	}
	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func registerHooks(lc fx.Lifecycle, srv *http.Server, det *detector.Service, hub *dispatch.Hub, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := det.WarmTable(ctx); err != nil {
				return err
			}
			go func() {
				logger.Info("transit-fraud listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", "error", err)
					os.Exit(1)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hub.Close()
			logger.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}
