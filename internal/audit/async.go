package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskRecord is the asynq task type for fail-open audit writes. Plain
// in-tenant reads enqueue through it so the response never waits on the
// audit store; the worker drains the queue into the recorder.
const TaskRecord = "audit:record"

// Enqueuer is the fail-open write path. Enqueue failures are logged and
// swallowed; read traffic must not stall because the trail hiccuped.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(client *asynq.Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// RecordAsync queues the entry for background persistence. Never blocks
// on the audit store and never returns an error to the caller.
func (q *Enqueuer) RecordAsync(ctx context.Context, e Entry) {
	if q == nil || q.client == nil {
		return
	}
	task, err := NewRecordTask(e)
	if err != nil {
		q.warn("marshal async audit entry", err)
		return
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		q.warn("enqueue async audit entry", err)
	}
}

func (q *Enqueuer) warn(msg string, err error) {
	if q.logger != nil {
		q.logger.Warn(msg, slog.Any("error", err))
	}
}

// NewRecordTask builds the asynq task carrying one entry.
func NewRecordTask(e Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal task: %w", err)
	}
	return asynq.NewTask(TaskRecord, payload), nil
}

// HandleRecordTask decodes a queued entry and persists it through the
// recorder. Registered by the worker.
func HandleRecordTask(recorder *Recorder) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var e Entry
		if err := json.Unmarshal(task.Payload(), &e); err != nil {
			return fmt.Errorf("audit: decode task: %w", err)
		}
		return recorder.Record(ctx, e)
	}
}
