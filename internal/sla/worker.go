package sla

import (
	"context"
	"sync"
	"time"

	"github.com/clinicdesk/inbox-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// Worker consumes recompute jobs from the queue and drives the engine.
type Worker struct {
	engine *Engine
	queue  queueClient
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumers.
func WithWorkerCount(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// NewWorker creates a recompute worker.
func NewWorker(engine *Engine, queue queueClient, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if engine == nil {
		panic("sla: engine required")
	}
	if queue == nil {
		panic("sla: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.receiveWaitSecs > maxWaitSeconds {
		cfg.receiveWaitSecs = maxWaitSeconds
	}
	if cfg.receiveBatchSize > maxReceiveBatchSize {
		cfg.receiveBatchSize = maxReceiveBatchSize
	}
	return &Worker{engine: engine, queue: queue, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines. They run until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
}

// Wait blocks until all consumers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("sla worker: receive failed", "error", err)
			continue
		}
		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// handle processes one message. On success the message is deleted; on
// failure it stays on the queue for redelivery, which is safe because engine
// transitions are idempotent under replay.
func (w *Worker) handle(ctx context.Context, msg queueMessage) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		// Poison message: log and drop, redelivery cannot fix it.
		w.logger.Error("sla worker: undecodable job dropped", "message_id", msg.ID, "error", err)
		w.deleteMessage(msg)
		return
	}

	switch job.Direction {
	case DirectionInbound:
		err = w.engine.OnInboundMessage(ctx, job.TenantID, job.ConversationID)
	case DirectionOutbound:
		err = w.engine.OnOutboundMessage(ctx, job.TenantID, job.ConversationID)
	case DirectionFinalize:
		err = w.engine.OnConversationFinalized(ctx, job.TenantID, job.ConversationID)
	case DirectionReopen:
		err = w.engine.OnConversationReopened(ctx, job.TenantID, job.ConversationID)
	default:
		w.logger.Error("sla worker: unknown job direction dropped", "direction", job.Direction)
		w.deleteMessage(msg)
		return
	}

	if err != nil {
		w.logger.Error("sla worker: recompute failed, leaving for redelivery",
			"tenant_id", job.TenantID, "conversation_id", job.ConversationID,
			"direction", job.Direction, "error", err)
		return
	}
	w.deleteMessage(msg)
}

func (w *Worker) deleteMessage(msg queueMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("sla worker: delete message failed", "message_id", msg.ID, "error", err)
	}
}
