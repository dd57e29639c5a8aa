package tasks

import (
	"context"
	"time"

	"github.com/deskhand/deskhand/internal/history"
	"github.com/deskhand/deskhand/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask schedules a daily prune of download history
// entries older than the retention period.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, retention time.Duration) error {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes history entries older than the retention period",
		Cron:        "0 2 * * *",
		RunOnStart:  false,
		Func: func(ctx context.Context) error {
			_, err := historyService.Prune(ctx, retention)
			return err
		},
	})
}
