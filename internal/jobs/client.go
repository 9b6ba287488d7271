package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/obs"
)

// Enqueuer is the subset of asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client submits tasks from the API process.
type Client struct {
	Enqueuer Enqueuer
	Logger   *zerolog.Logger
}

// EnqueueSnapshotRefresh asks the worker to rebuild the snapshot. Requests
// inside the debounce window collapse into one task.
func (c Client) EnqueueSnapshotRefresh(ctx context.Context, trigger string) error {
	if c.Enqueuer == nil {
		return nil
	}
	task, err := NewSnapshotRefreshTask(trigger)
	if err != nil {
		return err
	}
	_, err = c.Enqueuer.EnqueueContext(ctx, task, asynq.Unique(refreshDebounce), asynq.MaxRetry(3))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// StockChanged schedules a refresh after a stock-moving write. Failures are
// logged; the periodic refresh still catches up.
func (c Client) StockChanged(ctx context.Context) {
	if err := c.EnqueueSnapshotRefresh(context.WithoutCancel(ctx), TriggerStockChange); err != nil && c.Logger != nil {
		l := obs.WithRequest(ctx, *c.Logger)
		l.Warn().Err(err).Msg("snapshot_refresh_enqueue_failed")
	}
}
