package sla

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueSendReceive(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		if err := q.Send(ctx, body); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	messages, err := q.Receive(ctx, 10, 1)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Body != "one" || messages[2].Body != "three" {
		t.Fatalf("messages out of order: %+v", messages)
	}
	for _, msg := range messages {
		if msg.ID == "" || msg.ReceiptHandle == "" {
			t.Fatalf("message missing identity: %+v", msg)
		}
		if err := q.Delete(ctx, msg.ReceiptHandle); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
	}
}

func TestMemoryQueueReceiveHonorsMax(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Send(ctx, "msg"); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	messages, err := q.Receive(ctx, 2, 1)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)

	start := time.Now()
	messages, err := q.Receive(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if messages != nil {
		t.Fatalf("expected empty receive, got %+v", messages)
	}
	if time.Since(start) < time.Second {
		t.Fatal("receive returned before the wait elapsed")
	}
}

func TestMemoryQueueReceiveCanceled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Receive(ctx, 1, 10); err == nil {
		t.Fatal("expected context error on canceled receive")
	}
}
