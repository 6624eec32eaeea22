package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"

	"github.com/example/transit-fraud/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestPublishSwipeRoundTrip(t *testing.T) {
	swipes, anomalies := &fakeWriter{}, &fakeWriter{}
	p := NewKafkaProducerWithWriters(swipes, anomalies)

	in := models.Swipe{CardID: 77, StationID: 3, Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	if err := p.PublishSwipe(context.Background(), in); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(swipes.msgs) != 1 || len(anomalies.msgs) != 0 {
		t.Fatalf("unexpected writes swipes=%d anomalies=%d", len(swipes.msgs), len(anomalies.msgs))
	}
	if string(swipes.msgs[0].Key) != "77" {
		t.Fatalf("expected card key, got %q", swipes.msgs[0].Key)
	}
	out, err := DecodeSwipe(swipes.msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("swipe mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyWritesAnomalyTopic(t *testing.T) {
	swipes, anomalies := &fakeWriter{}, &fakeWriter{}
	p := NewKafkaProducerWithWriters(swipes, anomalies)

	a := models.Anomaly{CardID: 9, FromStation: 1, ToStation: 2, Elapsed: 30, RequiredMinimum: 90}
	if err := p.Notify(context.Background(), a); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(anomalies.msgs) != 1 {
		t.Fatalf("expected one anomaly message, got %d", len(anomalies.msgs))
	}
	var got models.Anomaly
	if err := json.Unmarshal(anomalies.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RequiredMinimum != 90 || got.CardID != 9 {
		t.Fatalf("unexpected anomaly %+v", got)
	}

	if err := p.Close(); err != nil || !swipes.closed || !anomalies.closed {
		t.Fatalf("close: err=%v swipes=%v anomalies=%v", err, swipes.closed, anomalies.closed)
	}
}
