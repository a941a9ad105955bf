package task

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
)

type job struct {
	task    Task
	opts    TaskOptions
	attempt int
}

// lane runs the tasks of one group key in order on a single goroutine.
type lane struct {
	key  string
	jobs chan *job
	// pending counts accepted tasks not yet finished, retries in backoff
	// included. Guarded by TaskRouter.mu.
	pending int
}

// laneLocked returns the lane for key, starting it when missing. tr.mu must
// be held.
func (tr *TaskRouter) laneLocked(key string) *lane {
	if l, ok := tr.lanes[key]; ok {
		return l
	}
	l := &lane{key: key, jobs: make(chan *job, tr.cfg.LaneBuffer)}
	tr.lanes[key] = l
	tr.wg.Add(1)
	go tr.work(l)
	return l
}

func (tr *TaskRouter) enqueue(ctx context.Context, l *lane, j *job) error {
	select {
	case l.jobs <- j:
		return nil
	case <-tr.done:
		return ErrRouterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tr *TaskRouter) release(l *lane) {
	tr.mu.Lock()
	l.pending--
	tr.mu.Unlock()
}

// retire removes l once nothing is pending on it.
func (tr *TaskRouter) retire(l *lane) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if l.pending > 0 || len(l.jobs) > 0 {
		return false
	}
	if tr.lanes[l.key] == l {
		delete(tr.lanes, l.key)
	}
	return true
}

func (tr *TaskRouter) work(l *lane) {
	defer tr.wg.Done()
	idle := time.NewTimer(tr.cfg.LaneIdleTTL)
	defer idle.Stop()
	for {
		select {
		case <-tr.done:
			return
		case j := <-l.jobs:
			tr.run(l, j)
			idle.Reset(tr.cfg.LaneIdleTTL)
		case <-idle.C:
			if tr.retire(l) {
				return
			}
			idle.Reset(tr.cfg.LaneIdleTTL)
		}
	}
}

func (tr *TaskRouter) run(l *lane, j *job) {
	h := tr.handler(j.task.Type)
	if h == nil {
		log.ApplicationLogger().Warn("Task dropped (handler not registered)", "type", j.task.Type, "group", l.key)
		tr.forget(j.opts.IdempotencyKey)
		tr.metrics.outcome(j.task.Type, outcomeDropped)
		tr.release(l)
		return
	}

	err := invoke(tr.ctx, h, j.task.Payload)
	switch {
	case err == nil:
		tr.metrics.outcome(j.task.Type, outcomeSucceeded)
		tr.release(l)
	case j.attempt < j.opts.MaxAttempts && tr.ctx.Err() == nil:
		delay := backoff(j.opts, j.attempt)
		log.ApplicationLogger().Warn("Task failed, scheduling retry",
			"type", j.task.Type,
			"group", l.key,
			"attempt", j.attempt,
			"max_attempts", j.opts.MaxAttempts,
			"backoff", delay.String(),
			"err", err,
		)
		tr.metrics.outcome(j.task.Type, outcomeRetried)
		j.attempt++
		tr.wg.Add(1)
		go tr.retryAfter(l, j, delay)
	default:
		log.ErrorLoggerRaw().Error("Task failed; max attempts reached",
			"type", j.task.Type,
			"group", l.key,
			"attempts", j.attempt,
			"err", err,
		)
		tr.metrics.outcome(j.task.Type, outcomeFailed)
		if tr.cfg.OnFinalFailure != nil {
			tr.cfg.OnFinalFailure(j.task, j.attempt, err)
		}
		tr.release(l)
	}
}

// retryAfter puts j back on its own lane after delay. The lane cannot retire
// meanwhile because j still counts as pending.
func (tr *TaskRouter) retryAfter(l *lane, j *job, delay time.Duration) {
	defer tr.wg.Done()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-tr.done:
		return
	}
	if err := tr.enqueue(tr.ctx, l, j); err != nil {
		log.ApplicationLogger().Warn("Task retry dropped", "type", j.task.Type, "group", l.key, "err", err)
		tr.metrics.outcome(j.task.Type, outcomeDropped)
		tr.release(l)
	}
}

func invoke(ctx context.Context, h TaskHandler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// backoff doubles InitialBackoff per failed attempt with +/-10% jitter,
// bounded by [InitialBackoff, MaxBackoff].
func backoff(o TaskOptions, attempt int) time.Duration {
	d := o.InitialBackoff
	for i := 1; i < attempt && d < o.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, o.MaxBackoff)
	if spread := int64(d) / 10; spread > 0 {
		d += time.Duration(rand.Int64N(2*spread+1) - spread)
	}
	return min(max(d, o.InitialBackoff), o.MaxBackoff)
}
