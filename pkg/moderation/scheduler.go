package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/task"
)

// Task types registered on the router by the scheduler.
const (
	TaskTypeRevert = "moderation.revert"
	TaskTypeSweep  = "moderation.sweep"
)

// SystemActorID is recorded as the actor when the bot cannot resolve itself.
const SystemActorID = "system"

// automaticExpiryReason is stored on sanctions created by timed reversions.
const automaticExpiryReason = "automatic expiry"

// Dispatcher is the subset of *task.TaskRouter the lifecycle uses.
type Dispatcher interface {
	RegisterHandler(taskType string, handler task.TaskHandler)
	Dispatch(ctx context.Context, t task.Task) error
	ScheduleEvery(interval time.Duration, t task.Task) task.Cancel
}

// Handle is an armed reversion timer.
type Handle struct {
	SanctionID int64
	DueAt      time.Time

	s     *Scheduler
	timer Timer
	fired bool
}

// Cancel stops the timer and marks the reversion cancelled. It reports
// whether this call performed the transition.
func (h *Handle) Cancel(ctx context.Context) (bool, error) {
	return h.s.cancel(ctx, h.SanctionID)
}

// RecoveryReport summarizes a reconcile pass over pending reversions.
type RecoveryReport struct {
	Armed      int
	Dispatched int
	Lost       int
}

// SchedulerOptions are optional collaborators; zero values select defaults.
type SchedulerOptions struct {
	Clock    Clock
	Metrics  *Metrics
	Notifier Notifier
}

// Scheduler persists and fires reversions of temporary sanctions. Every
// reversion is a row in the store first and a timer second, so a restart only
// loses timers, which Recover re-arms.
type Scheduler struct {
	store    Store
	platform Platform
	router   Dispatcher
	clock    Clock
	metrics  *Metrics
	notifier Notifier
	locks    *keyedMutex

	mu        sync.Mutex
	handles   map[int64]*Handle
	stopSweep task.Cancel
}

// NewScheduler registers the revert and sweep handlers on router.
func NewScheduler(store Store, platform Platform, router Dispatcher, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	s := &Scheduler{
		store:    store,
		platform: platform,
		router:   router,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		locks:    newKeyedMutex(),
		handles:  make(map[int64]*Handle),
	}
	router.RegisterHandler(TaskTypeRevert, s.handleRevert)
	router.RegisterHandler(TaskTypeSweep, s.handleSweep)
	return s
}

// Start recovers pending reversions and schedules the periodic sweep.
func (s *Scheduler) Start(ctx context.Context, sweepInterval time.Duration) (RecoveryReport, error) {
	report, err := s.Recover(ctx)
	if err != nil {
		return report, err
	}
	if sweepInterval > 0 {
		cancel := s.router.ScheduleEvery(sweepInterval, task.Task{
			Type:    TaskTypeSweep,
			Options: task.TaskOptions{GroupKey: TaskTypeSweep, IdempotencyKey: TaskTypeSweep, IdempotencyTTL: sweepInterval / 2, MaxAttempts: 1},
		})
		s.mu.Lock()
		s.stopSweep = cancel
		s.mu.Unlock()
	}
	return report, nil
}

// Stop halts the sweep and all in-process timers. Persisted rows stay pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopSweep != nil {
		s.stopSweep()
		s.stopSweep = nil
	}
	for id, h := range s.handles {
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(s.handles, id)
	}
	s.metrics.armed(0)
}

// Exclusive runs fn while holding the per-target lock shared with reversions.
func (s *Scheduler) Exclusive(guildID, targetID string, fn func()) {
	unlock := s.locks.Lock(TargetKey(guildID, targetID))
	defer unlock()
	fn()
}

// Arm persists r as pending and starts its timer.
func (s *Scheduler) Arm(ctx context.Context, r Reversion) (*Handle, error) {
	if r.SanctionID == 0 {
		return nil, fmt.Errorf("arm reversion: missing sanction id")
	}
	if !r.Kind.Temporary() {
		return nil, fmt.Errorf("arm reversion: %s cannot be reverted on a timer", r.Kind)
	}
	now := s.clock.Now().UTC()
	r.State = ReversionPending
	r.DueAt = r.DueAt.UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.store.SaveReversion(ctx, r); err != nil {
		return nil, &PersistenceError{Op: "save reversion", Err: err}
	}
	return s.arm(r), nil
}

// Handle returns the live handle for a sanction, if armed in this process.
func (s *Scheduler) Handle(sanctionID int64) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[sanctionID]
	return h, ok
}

// Armed returns how many timers are live.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// CancelFor cancels every pending reversion of kind for the target and
// returns how many were cancelled.
func (s *Scheduler) CancelFor(ctx context.Context, guildID, targetID string, kind ActionKind) (int, error) {
	rows, err := s.store.PendingReversionsFor(ctx, guildID, targetID, kind)
	if err != nil {
		return 0, &PersistenceError{Op: "list pending reversions", Err: err}
	}
	n := 0
	var errs []error
	for _, r := range rows {
		ok, err := s.cancel(ctx, r.SanctionID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// Recover re-arms pending reversions after a restart. Overdue ones are
// dispatched immediately.
func (s *Scheduler) Recover(ctx context.Context) (RecoveryReport, error) {
	report, err := s.reconcile(ctx, true)
	if err == nil && (report.Armed+report.Dispatched) > 0 {
		log.ApplicationLogger().Info("Recovered pending reversions", "armed", report.Armed, "dispatched", report.Dispatched)
	}
	return report, err
}

// Sweep dispatches overdue reversions whose timers are gone and arms rows that
// have none.
func (s *Scheduler) Sweep(ctx context.Context) (RecoveryReport, error) {
	return s.reconcile(ctx, false)
}

func (s *Scheduler) reconcile(ctx context.Context, startup bool) (RecoveryReport, error) {
	var report RecoveryReport
	rows, err := s.store.PendingReversions(ctx)
	if err != nil {
		return report, &PersistenceError{Op: "list pending reversions", Err: err}
	}
	now := s.clock.Now()
	for _, r := range rows {
		if _, live := s.Handle(r.SanctionID); live {
			continue
		}
		if r.DueAt.After(now) {
			s.arm(r)
			report.Armed++
			if startup {
				s.metrics.recovered()
			}
			continue
		}
		if startup {
			s.metrics.recovered()
		} else {
			report.Lost++
			s.metrics.lost()
			log.ErrorLoggerRaw().Warn("Overdue reversion without timer",
				"sanction_id", r.SanctionID,
				"guild_id", r.GuildID,
				"target_id", r.TargetID,
				"kind", string(r.Kind),
				"due_at", r.DueAt,
				"err", ErrTimerLost,
			)
		}
		if s.dispatch(r) {
			report.Dispatched++
		}
	}
	return report, nil
}

func (s *Scheduler) arm(r Reversion) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[r.SanctionID]; ok {
		return h
	}
	h := &Handle{SanctionID: r.SanctionID, DueAt: r.DueAt, s: s}
	delay := r.DueAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	h.timer = s.clock.AfterFunc(delay, func() { s.fire(r) })
	s.handles[r.SanctionID] = h
	s.metrics.armed(len(s.handles))
	return h
}

func (s *Scheduler) fire(r Reversion) {
	s.mu.Lock()
	h, ok := s.handles[r.SanctionID]
	if !ok || h.fired {
		s.mu.Unlock()
		return
	}
	h.fired = true
	s.mu.Unlock()
	if !s.dispatch(r) {
		s.dropHandle(r.SanctionID)
	}
}

// dispatch queues the revert job on the target's group and reports success.
func (s *Scheduler) dispatch(r Reversion) bool {
	s.mu.Lock()
	if h, ok := s.handles[r.SanctionID]; ok {
		h.fired = true
	} else {
		s.handles[r.SanctionID] = &Handle{SanctionID: r.SanctionID, DueAt: r.DueAt, s: s, fired: true}
	}
	s.mu.Unlock()

	err := s.router.Dispatch(context.Background(), task.Task{
		Type:    TaskTypeRevert,
		Payload: r.SanctionID,
		Options: task.TaskOptions{
			GroupKey:       r.Key(),
			IdempotencyKey: fmt.Sprintf("revert:%d", r.SanctionID),
			MaxAttempts:    1,
		},
	})
	if err != nil && !errors.Is(err, task.ErrDuplicateTask) {
		log.ErrorLoggerRaw().Error("Failed to dispatch reversion", "sanction_id", r.SanctionID, "err", err)
		s.dropHandle(r.SanctionID)
		return false
	}
	return true
}

func (s *Scheduler) dropHandle(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(s.handles, id)
	}
	s.metrics.armed(len(s.handles))
}

func (s *Scheduler) cancel(ctx context.Context, id int64) (bool, error) {
	s.dropHandle(id)
	ok, err := s.store.TransitionReversion(ctx, id, ReversionCancelled, "", s.clock.Now().UTC())
	if err != nil {
		return false, &PersistenceError{Op: "cancel reversion", Err: err}
	}
	if ok {
		s.metrics.reversion(ReversionCancelled)
	}
	return ok, nil
}

func (s *Scheduler) handleRevert(ctx context.Context, payload any) error {
	id, ok := payload.(int64)
	if !ok {
		return fmt.Errorf("invalid payload for %s", TaskTypeRevert)
	}
	_, err := s.Resolve(ctx, id)
	return err
}

func (s *Scheduler) handleSweep(ctx context.Context, _ any) error {
	report, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if report.Lost > 0 || report.Armed > 0 {
		log.ApplicationLogger().Info("Reversion sweep", "armed", report.Armed, "lost", report.Lost, "dispatched", report.Dispatched)
	}
	return nil
}

// Resolve runs the reversion for a sanction now, under the target lock. Rows
// no longer pending are left alone and return their current state.
func (s *Scheduler) Resolve(ctx context.Context, sanctionID int64) (ReversionState, error) {
	defer s.dropHandle(sanctionID)

	r, err := s.store.Reversion(ctx, sanctionID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", &PersistenceError{Op: "load reversion", Err: err}
	}

	unlock := s.locks.Lock(r.Key())
	defer unlock()

	if r, err = s.store.Reversion(ctx, sanctionID); err != nil {
		return "", &PersistenceError{Op: "load reversion", Err: err}
	}
	if r.State != ReversionPending {
		return r.State, nil
	}

	active, err := s.effectActive(ctx, r)
	if err != nil {
		return s.finish(ctx, r, ReversionFailed, err)
	}
	if !active {
		return s.finish(ctx, r, ReversionSuperseded, nil)
	}
	if err := s.revert(ctx, r); err != nil {
		return s.finish(ctx, r, ReversionFailed, err)
	}
	return s.finish(ctx, r, ReversionReverted, nil)
}

func (s *Scheduler) effectActive(ctx context.Context, r Reversion) (bool, error) {
	switch r.Kind {
	case KindMute:
		return s.platform.IsMuted(ctx, r.GuildID, r.TargetID, r.Payload.MuteRoleID)
	case KindLock:
		return s.platform.IsLocked(ctx, r.GuildID, r.Payload.ChannelID)
	}
	return false, fmt.Errorf("no reversion for %s", r.Kind)
}

func (s *Scheduler) revert(ctx context.Context, r Reversion) error {
	switch r.Kind {
	case KindMute:
		return s.platform.Unmute(ctx, r.GuildID, r.TargetID, r.Payload.MuteRoleID, automaticExpiryReason)
	case KindLock:
		return s.platform.UnlockChannel(ctx, r.GuildID, r.Payload.ChannelID, r.Payload.Original, automaticExpiryReason)
	}
	return fmt.Errorf("no reversion for %s", r.Kind)
}

func (s *Scheduler) finish(ctx context.Context, r Reversion, state ReversionState, cause error) (ReversionState, error) {
	note := ""
	if cause != nil {
		note = cause.Error()
	}
	now := s.clock.Now().UTC()
	ok, err := s.store.TransitionReversion(ctx, r.SanctionID, state, note, now)
	if err != nil {
		return "", &PersistenceError{Op: "transition reversion", Err: err}
	}
	if !ok {
		current, err := s.store.Reversion(ctx, r.SanctionID)
		if err != nil {
			return "", &PersistenceError{Op: "load reversion", Err: err}
		}
		return current.State, nil
	}
	r.State = state
	r.LastError = note
	r.UpdatedAt = now
	s.metrics.reversion(state)

	logger := log.ApplicationLogger()
	if state == ReversionFailed {
		logger = log.ErrorLoggerRaw()
	}
	logger.Info("Reversion resolved",
		"sanction_id", r.SanctionID,
		"guild_id", r.GuildID,
		"target_id", r.TargetID,
		"kind", string(r.Kind),
		"state", string(state),
		"err", cause,
	)

	if state == ReversionReverted || state == ReversionSuperseded {
		if err := s.store.DeactivateSanction(ctx, r.SanctionID); err != nil {
			log.ErrorLoggerRaw().Error("Failed to deactivate expired sanction", "sanction_id", r.SanctionID, "err", err)
		}
	}
	if state == ReversionReverted {
		s.recordInverse(ctx, r, now)
	}

	policy, err := s.store.GuildPolicy(ctx, r.GuildID)
	if err == nil {
		s.notifier.ReversionResolved(ctx, r, policy)
	}
	return state, nil
}

func (s *Scheduler) recordInverse(ctx context.Context, r Reversion, now time.Time) {
	inverse, ok := r.Kind.Inverse()
	if !ok {
		return
	}
	actor := SystemActorID
	if sys, err := s.platform.SystemPrincipal(ctx, r.GuildID); err == nil && sys.ID != "" {
		actor = sys.ID
	}
	sanction := NewSanction(r.GuildID, r.TargetID, actor, inverse, automaticExpiryReason, 0, now)
	sanction.Metadata = map[string]string{"reverts": fmt.Sprint(r.SanctionID)}
	if _, err := s.store.CreateSanction(ctx, sanction); err != nil {
		s.metrics.persistenceFailure("record inverse")
		log.ErrorLoggerRaw().Error("Failed to record automatic reversion", "sanction_id", r.SanctionID, "err", err)
	}
}
