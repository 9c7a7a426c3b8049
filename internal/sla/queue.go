package sla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction of the message (or lifecycle action) that triggered a
// recomputation.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionFinalize Direction = "finalize"
	DirectionReopen   Direction = "reopen"
)

// RecomputeJob asks the worker to re-run the timer state machine for one
// conversation. Jobs are fire-and-forget: transitions are idempotent under
// replay, so redelivery is safe.
type RecomputeJob struct {
	ID             string    `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Publisher enqueues recompute jobs.
type Publisher struct {
	queue queueClient
}

// NewPublisher creates a recompute job publisher.
func NewPublisher(queue queueClient) *Publisher {
	if queue == nil {
		panic("sla: queue client required")
	}
	return &Publisher{queue: queue}
}

// Enqueue publishes the job.
func (p *Publisher) Enqueue(ctx context.Context, job RecomputeJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.OccurredAt.IsZero() {
		job.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("sla: encode recompute job: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("sla: enqueue recompute job: %w", err)
	}
	return nil
}

func decodeJob(body string) (RecomputeJob, error) {
	var job RecomputeJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return RecomputeJob{}, fmt.Errorf("sla: decode recompute job: %w", err)
	}
	return job, nil
}
