package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Refresher rebuilds the inventory snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SnapshotRefreshJob handles TaskSnapshotRefresh.
type SnapshotRefreshJob struct {
	Refresher Refresher
	Logger    *zerolog.Logger
	Now       func() time.Time
}

func (j *SnapshotRefreshJob) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *SnapshotRefreshJob) log() *zerolog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Handle runs one refresh. Malformed payloads are not retried.
func (j *SnapshotRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("snapshot refresh: dependencies not configured")
	}
	var payload SnapshotRefreshPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			j.log().Error().Err(err).Msg("snapshot_refresh_bad_payload")
			return asynq.SkipRetry
		}
	}
	start := j.now()
	if err := j.Refresher.Refresh(ctx); err != nil {
		j.log().Error().Err(err).Str("trigger", payload.Trigger).Msg("snapshot_refresh_failed")
		return err
	}
	j.log().Info().
		Str("trigger", payload.Trigger).
		Dur("duration", j.now().Sub(start)).
		Msg("snapshot_refresh_done")
	return nil
}
