package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	jobmetrics "github.com/pharmos-erp/pharmos-erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BypassSweepJob surfaces bypass audit entries that never reached a
// terminal state: an initiated entry past the threshold means a bypass
// session crashed or was killed mid-flight, and operators must review it.
// The sweep never finalises entries itself; the trail stays append-only
// and only the originating gate may complete its own entry.
type BypassSweepJob struct {
	Recorder   *audit.Recorder
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	StaleAfter time.Duration
}

// NewBypassSweepJob wires dependencies for the sweep handler.
func NewBypassSweepJob(recorder *audit.Recorder, logger *slog.Logger, metrics *jobmetrics.Metrics, staleAfter time.Duration) *BypassSweepJob {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &BypassSweepJob{Recorder: recorder, Logger: logger, Metrics: metrics, StaleAfter: staleAfter}
}

// Handle processes stale-bypass sweep tasks.
func (j *BypassSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Recorder == nil {
		return errors.New("bypass sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskBypassSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	stale, err := j.Recorder.StaleInitiated(ctx, j.StaleAfter)
	if err != nil {
		resultErr = err
		j.logger().Error("list stale bypass entries", slog.Any("error", err))
		return resultErr
	}
	j.metrics().SetStaleBypasses(len(stale))
	for _, e := range stale {
		j.logger().Warn("bypass entry stuck in initiated state",
			slog.String("entry_id", e.ID.String()),
			slog.String("tenant_id", e.TenantID.String()),
			slog.String("actor_user_id", e.ActorUserID.String()),
			slog.String("action", string(e.Action)),
			slog.Time("occurred_at", e.At))
	}
	if len(stale) == 0 {
		j.logger().Info("no stale bypass entries")
	}
	return resultErr
}

func (j *BypassSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BypassSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
