package task

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// Cancel stops a recurring dispatch.
type Cancel func()

// ScheduleEvery dispatches t every interval, never more often than once a
// second. Runs that hit a live idempotency key are skipped silently.
func (tr *TaskRouter) ScheduleEvery(interval time.Duration, t Task) Cancel {
	id := tr.cron.Schedule(cron.Every(max(interval, time.Second)), cron.FuncJob(func() {
		tr.dispatchScheduled(t)
	}))
	return func() { tr.cron.Remove(id) }
}

func (tr *TaskRouter) dispatchScheduled(t Task) {
	err := tr.Dispatch(context.Background(), t)
	if err == nil || errors.Is(err, ErrDuplicateTask) || errors.Is(err, ErrRouterClosed) {
		return
	}
	log.ApplicationLogger().Warn("Scheduled task not dispatched", "type", t.Type, "err", err)
}
