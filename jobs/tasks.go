// Package jobs hosts the asynq worker and the engine's background
// maintenance tasks.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBypassSweep flags bypass audit entries stuck in initiated state.
	TaskBypassSweep = "access:bypass-sweep"
	// TaskGrantSweep closes branch grants whose expiry has passed.
	TaskGrantSweep = "access:grant-sweep"
)

// NewBypassSweepTask constructs the stale-bypass sweep task.
func NewBypassSweepTask() *asynq.Task {
	return asynq.NewTask(TaskBypassSweep, nil)
}

// NewGrantSweepTask constructs the expired-grant sweep task.
func NewGrantSweepTask() *asynq.Task {
	return asynq.NewTask(TaskGrantSweep, nil)
}
