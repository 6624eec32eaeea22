package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/transit-fraud/internal/app"
	"github.com/example/transit-fraud/internal/config"
	"github.com/example/transit-fraud/internal/detector"
	"github.com/example/transit-fraud/internal/ingest"
	"github.com/example/transit-fraud/internal/logging"
	"github.com/example/transit-fraud/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total swipe messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid swipe messages received",
	})
	recordErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_record_errors_total",
		Help: "Swipes dropped after exhausting retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, recordErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Component(logging.NewLogger(cfg.LogLevel), "consumer")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg.Stores, logger)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer stores.Close()

	producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.SwipeTopic, cfg.AnomalyTopic)
	defer producer.Close()

	det := stores.Detector(map[string]detector.Notifier{"kafka": producer}, logger)
	if err := det.WarmTable(ctx); err != nil {
		log.Fatalf("feasibility table: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := stores.Ledger.Ping(r.Context()); err != nil {
				http.Error(w, "ledger not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.SwipeTopic, GroupID: cfg.ConsumerGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("consumer listening", "topic", cfg.SwipeTopic, "brokers", cfg.KafkaBrokers, "group", cfg.ConsumerGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		handleMessage(ctx, det, m, cfg.RecordAttempts, cfg.RetryDelay, logger)
	}
}

// Recorder persists and checks one swipe.
type Recorder interface {
	RecordSwipe(ctx context.Context, sw models.Swipe) (models.Ride, models.CheckResult, error)
}

// handleMessage decodes and records one swipe. Bad messages are counted and
// skipped; store failures are retried before the swipe is dropped.
func handleMessage(ctx context.Context, rec Recorder, m kafka.Message, attempts int, delay time.Duration, logger *slog.Logger) {
	msgsConsumed.Inc()

	sw, err := ingest.DecodeSwipe(m)
	if err != nil {
		msgsInvalid.Inc()
		logger.Warn("invalid message", "offset", m.Offset, "error", err)
		return
	}

	res, err := recordWithRetry(ctx, rec, sw, attempts, delay)
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		msgsInvalid.Inc()
		logger.Warn("swipe rejected", "card_id", sw.CardID, "station_id", sw.StationID, "error", err)
	case err != nil:
		recordErrors.Inc()
		logger.Error("swipe dropped", "card_id", sw.CardID, "error", err)
	default:
		logger.Debug("swipe recorded", "card_id", sw.CardID, "status", res.Status)
	}
}

// recordWithRetry retries only dependency failures, doubling the delay.
func recordWithRetry(ctx context.Context, rec Recorder, sw models.Swipe, attempts int, delay time.Duration) (models.CheckResult, error) {
	var err error
	for i := 0; i < attempts; i++ {
		var res models.CheckResult
		_, res, err = rec.RecordSwipe(ctx, sw)
		if err == nil || !errors.Is(err, models.ErrDependency) {
			return res, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return models.CheckResult{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return models.CheckResult{}, err
}
