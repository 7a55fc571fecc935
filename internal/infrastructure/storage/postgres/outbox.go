package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"almacen/internal/core/id"
	"almacen/internal/domain/notify"
	"almacen/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage is one queued notification.
type OutboxMessage struct {
	ID          id.ID        `db:"id"`
	EventType   string       `db:"event_type"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	RetryCount  int          `db:"retry_count"`
	LastError   *string      `db:"last_error"`
	NextRetryAt *time.Time   `db:"next_retry_at"`
	CreatedAt   time.Time    `db:"created_at"`
	PublishedAt *time.Time   `db:"published_at"`
}

// Notification decodes the queued payload.
func (m *OutboxMessage) Notification() (notify.Notification, error) {
	var n notify.Notification
	if err := json.Unmarshal(m.Payload, &n); err != nil {
		return n, fmt.Errorf("decode outbox message %s: %w", m.ID, err)
	}
	return n, nil
}

// OutboxSink implements notify.Sink by queueing notifications in sys_outbox
// for the worker to deliver.
type OutboxSink struct {
	txManager *TxManager
	now       func() time.Time
}

var _ notify.Sink = (*OutboxSink)(nil)

// NewOutboxSink creates an outbox-backed sink.
func NewOutboxSink(txManager *TxManager) *OutboxSink {
	return &OutboxSink{txManager: txManager, now: time.Now}
}

// Send queues n.
func (s *OutboxSink) Send(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = s.txManager.Querier(ctx).Exec(ctx, `
		INSERT INTO sys_outbox (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.New(), string(n.EventType), payload, OutboxStatusPending, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxRelay reads pending messages and hands them to a sink.
type OutboxRelay struct {
	txManager  *TxManager
	sink       notify.Sink
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

// NewOutboxRelay creates a relay. Messages failing maxRetries times are
// marked failed and later moved to the dead letter queue.
func NewOutboxRelay(txManager *TxManager, sink notify.Sink, batchSize, maxRetries int) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxRelay{
		txManager:  txManager,
		sink:       sink,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    time.Minute,
	}
}

// ProcessBatch delivers one batch of pending messages and returns how many
// were published. Rows stay locked until the batch commits, so concurrent
// relays skip them.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := Builder().
			Select("id", "event_type", "payload", "status", "retry_count", "last_error",
				"next_retry_at", "created_at", "published_at").
			From("sys_outbox").
			Where("status = ?", OutboxStatusPending).
			Where("(next_retry_at IS NULL OR next_retry_at <= NOW())").
			OrderBy("created_at").
			Limit(uint64(r.batchSize)).
			Suffix("FOR UPDATE SKIP LOCKED")

		messages, err := NewTable[OutboxMessage](r.txManager, "sys_outbox", "outbox message").Select(ctx, q)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.process(ctx, msg); err != nil {
				return err
			}
			if msg.Status == OutboxStatusPublished {
				processed++
			}
		}
		return nil
	})
	return processed, err
}

// process delivers msg and records the outcome. Only bookkeeping failures
// are returned; delivery failures are scheduled for retry.
func (r *OutboxRelay) process(ctx context.Context, msg *OutboxMessage) error {
	q := r.txManager.Querier(ctx)

	deliveryErr := r.deliver(ctx, msg)
	if deliveryErr == nil {
		msg.Status = OutboxStatusPublished
		_, err := q.Exec(ctx, `
			UPDATE sys_outbox SET status = $1, published_at = NOW() WHERE id = $2
		`, OutboxStatusPublished, msg.ID)
		if err != nil {
			return fmt.Errorf("mark outbox message published: %w", err)
		}
		return nil
	}

	logger.Warn(ctx, "outbox delivery failed",
		"message_id", msg.ID.String(),
		"event", msg.EventType,
		"retry", msg.RetryCount+1,
		"error", deliveryErr,
	)

	status := OutboxStatusPending
	if msg.RetryCount+1 >= r.maxRetries {
		status = OutboxStatusFailed
	}
	nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * r.backoff)
	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1, last_error = $1, next_retry_at = $2, status = $3
		WHERE id = $4
	`, deliveryErr.Error(), nextRetry, status, msg.ID)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	msg.Status = status
	return nil
}

func (r *OutboxRelay) deliver(ctx context.Context, msg *OutboxMessage) error {
	n, err := msg.Notification()
	if err != nil {
		return err
	}
	return r.sink.Send(ctx, n)
}

// MoveToDLQ moves failed messages to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txManager.Querier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, event_type, payload, retry_count, failure_reason, created_at, failed_at)
		SELECT id, event_type, payload, retry_count, last_error, created_at, NOW() FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}
