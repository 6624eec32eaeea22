package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/transit-fraud/internal/models"
)

// fakeRecorder fails the first n calls with err.
type fakeRecorder struct {
	fail  int
	err   error
	calls int
}

func (f *fakeRecorder) RecordSwipe(ctx context.Context, sw models.Swipe) (models.Ride, models.CheckResult, error) {
	f.calls++
	if f.calls <= f.fail {
		return models.Ride{}, models.CheckResult{}, f.err
	}
	return models.Ride{ID: "r1", CardID: sw.CardID}, models.CheckResult{Status: models.StatusPass}, nil
}

var (
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
	swipe = models.Swipe{CardID: 5, StationID: 10, Timestamp: time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)}
)

func TestRecordWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeRecorder{fail: 2, err: fmt.Errorf("%w: connection reset", models.ErrDependency)}
	start := time.Now()
	res, err := recordWithRetry(context.Background(), f, swipe, 3, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 || res.Status != models.StatusPass {
		t.Fatalf("expected 3 calls and PASS, got calls=%d res=%+v", f.calls, res)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestRecordWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeRecorder{fail: 5, err: fmt.Errorf("%w: down", models.ErrDependency)}
	if _, err := recordWithRetry(context.Background(), f, swipe, 3, time.Millisecond); !errors.Is(err, models.ErrDependency) {
		t.Fatalf("expected dependency error after retries, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}

func TestRecordWithRetry_DoesNotRetryInvalidInput(t *testing.T) {
	f := &fakeRecorder{fail: 5, err: fmt.Errorf("%w: unknown card", models.ErrInvalidInput)}
	if _, err := recordWithRetry(context.Background(), f, swipe, 3, time.Millisecond); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("input errors must not be retried, got %d calls", f.calls)
	}
}

func TestHandleMessageSkipsUndecodable(t *testing.T) {
	f := &fakeRecorder{}
	handleMessage(context.Background(), f, kafka.Message{Value: []byte("{not json")}, 3, time.Millisecond, quiet)
	if f.calls != 0 {
		t.Fatalf("undecodable message should not reach the recorder")
	}

	handleMessage(context.Background(), f, kafka.Message{Value: []byte(`{"card_id":5,"station_id":10,"timestamp":"2025-03-04T08:00:00Z"}`)}, 3, time.Millisecond, quiet)
	if f.calls != 1 {
		t.Fatalf("expected one record call, got %d", f.calls)
	}
}
