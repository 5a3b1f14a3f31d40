package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	jobmetrics "github.com/pharmos-erp/pharmos-erp/internal/jobs"
)

// GrantSweepJob closes branch grants whose expiry timestamp has passed.
// Pure hygiene: the evaluator checks expiry inline on every decision, so
// a missed sweep never lets an expired grant authorize anything.
type GrantSweepJob struct {
	Grants  *access.PGGrantRepository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGrantSweepJob wires dependencies for the sweep handler.
func NewGrantSweepJob(grants *access.PGGrantRepository, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantSweepJob {
	return &GrantSweepJob{
		Grants:  grants,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes expired-grant sweep tasks.
func (j *GrantSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Grants == nil {
		return errors.New("grant sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskGrantSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	closed, err := j.Grants.CloseExpired(ctx, j.clock())
	if err != nil {
		resultErr = err
		j.logger().Error("close expired grants", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddGrantsClosed(int(closed))
	if closed > 0 {
		j.logger().Info("closed expired branch grants", slog.Int64("count", closed))
	}
	return resultErr
}

func (j *GrantSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GrantSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
