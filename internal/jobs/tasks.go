// Package jobs runs background work on asynq.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every task is enqueued on.
	QueueDefault = "default"

	// TaskSnapshotRefresh rebuilds the cached inventory snapshot.
	TaskSnapshotRefresh = "inventory:snapshot:refresh"

	// Triggers recorded on refresh payloads.
	TriggerSchedule    = "schedule"
	TriggerStockChange = "stock_change"
)

// refreshDebounce collapses bursts of stock changes into one refresh.
const refreshDebounce = 5 * time.Second

// SnapshotRefreshPayload records why a refresh was requested.
type SnapshotRefreshPayload struct {
	Trigger string `json:"trigger"`
}

// NewSnapshotRefreshTask builds a refresh task.
func NewSnapshotRefreshTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = TriggerSchedule
	}
	body, err := json.Marshal(SnapshotRefreshPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotRefresh, body, asynq.Queue(QueueDefault)), nil
}
