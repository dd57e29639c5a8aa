package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/scheduler"
	"github.com/deskhand/deskhand/internal/store"
)

const StagingSweepTaskID = "staging-sweep"

// StagingSweepTask removes partial download files left behind by
// interrupted transfers.
type StagingSweepTask struct {
	store  *store.Store
	maxAge time.Duration
	logger zerolog.Logger
}

// NewStagingSweepTask creates the sweep task. Staging files younger than
// maxAge are kept, since a download may still be writing them.
func NewStagingSweepTask(st *store.Store, maxAge time.Duration, logger zerolog.Logger) *StagingSweepTask {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &StagingSweepTask{
		store:  st,
		maxAge: maxAge,
		logger: logger.With().Str("task", StagingSweepTaskID).Logger(),
	}
}

// Run sweeps the staging area once.
func (t *StagingSweepTask) Run(ctx context.Context) error {
	removed, err := t.store.SweepStaging(t.maxAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		t.logger.Info().Int("removed", removed).Msg("Removed stale staging files")
	}
	return nil
}

// RegisterStagingSweepTask schedules an hourly sweep, plus one at startup
// to clean up after a crashed process.
func RegisterStagingSweepTask(sched *scheduler.Scheduler, st *store.Store, maxAge time.Duration, logger zerolog.Logger) error {
	task := NewStagingSweepTask(st, maxAge, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          StagingSweepTaskID,
		Name:        "Staging Sweep",
		Description: "Removes stale partial download files",
		Cron:        "@every 1h",
		RunOnStart:  true,
		Func:        task.Run,
	})
}
