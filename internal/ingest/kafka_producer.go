package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/transit-fraud/internal/models"
)

const publishTimeout = 2 * time.Second

// MessageWriter is the part of kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes gate swipes and anomaly records, both keyed by
// card id so one card's events stay ordered within a partition.
type KafkaProducer struct {
	swipes    MessageWriter
	anomalies MessageWriter
}

func NewKafkaProducer(brokers []string, swipeTopic, anomalyTopic string) *KafkaProducer {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	}
	return &KafkaProducer{swipes: newWriter(swipeTopic), anomalies: newWriter(anomalyTopic)}
}

func NewKafkaProducerWithWriters(swipes, anomalies MessageWriter) *KafkaProducer {
	return &KafkaProducer{swipes: swipes, anomalies: anomalies}
}

func (k *KafkaProducer) PublishSwipe(ctx context.Context, sw models.Swipe) error {
	return publish(ctx, k.swipes, sw.CardID, sw)
}

// Notify publishes the anomaly record; it satisfies the detector's notifier.
func (k *KafkaProducer) Notify(ctx context.Context, a models.Anomaly) error {
	return publish(ctx, k.anomalies, a.CardID, a)
}

func publish(ctx context.Context, w MessageWriter, cardID int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(strconv.FormatInt(cardID, 10)), Value: b})
}

func (k *KafkaProducer) Close() error {
	var err error
	for _, w := range []MessageWriter{k.swipes, k.anomalies} {
		if w == nil {
			continue
		}
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// DecodeSwipe parses a swipe message as published by PublishSwipe.
func DecodeSwipe(m kafka.Message) (models.Swipe, error) {
	var sw models.Swipe
	err := json.Unmarshal(m.Value, &sw)
	return sw, err
}
