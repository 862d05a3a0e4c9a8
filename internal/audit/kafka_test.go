package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type memWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkKeysByUser(t *testing.T) {
	w := &memWriter{}
	sink := NewKafkaSink(w, time.Second, nil)

	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", UserID: "u-1", Severity: "high"})

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u-1" {
		t.Fatalf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "refresh_reuse_detected" {
		t.Fatalf("headers = %+v", msg.Headers)
	}
	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Severity != "high" {
		t.Fatalf("severity = %q", got.Severity)
	}
}

func TestKafkaSinkSwallowsPublishErrors(t *testing.T) {
	w := &memWriter{err: errors.New("broker down")}
	sink := NewKafkaSink(w, time.Second, nil)
	sink.Emit(context.Background(), Event{EventType: "signin_failure"})
	if err := sink.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}
