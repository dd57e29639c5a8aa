package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/scheduler"
	"github.com/deskhand/deskhand/internal/store"
)

const StorageHealthTaskID = "storage-health"

// StorageHealthTask verifies the model directory is present and writable.
type StorageHealthTask struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewStorageHealthTask(st *store.Store, logger zerolog.Logger) *StorageHealthTask {
	return &StorageHealthTask{
		store:  st,
		logger: logger.With().Str("task", StorageHealthTaskID).Logger(),
	}
}

// Run performs a single write probe against the model directory.
func (t *StorageHealthTask) Run(ctx context.Context) error {
	ok, detail := t.store.CheckHealth()
	if !ok {
		return fmt.Errorf("model storage unhealthy: %s", detail)
	}
	t.logger.Debug().Str("dir", t.store.Dir()).Msg("Model storage healthy")
	return nil
}

// RegisterStorageHealthTask schedules a daily storage probe, plus one at
// startup so misconfigured volumes surface immediately.
func RegisterStorageHealthTask(sched *scheduler.Scheduler, st *store.Store, logger zerolog.Logger) error {
	task := NewStorageHealthTask(st, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          StorageHealthTaskID,
		Name:        "Storage Health Check",
		Description: "Verifies the model directory is writable",
		Cron:        "@every 24h",
		RunOnStart:  true,
		Func:        task.Run,
	})
}
