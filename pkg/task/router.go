package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// TaskHandler processes one task payload. A returned error (or a panic)
// counts as a failed attempt.
type TaskHandler func(ctx context.Context, payload any) error

// TaskOptions tune a single dispatch. Zero values fall back to RouterConfig.
type TaskOptions struct {
	// GroupKey serializes tasks that share it. Empty means the shared lane.
	GroupKey string
	// IdempotencyKey rejects repeats while the key is remembered.
	IdempotencyKey string
	IdempotencyTTL time.Duration

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Task is a unit of work routed to the handler registered for Type.
type Task struct {
	Type    string
	Payload any
	Options TaskOptions
}

// RouterConfig holds router-wide defaults.
type RouterConfig struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	IdempotencyTTL     time.Duration

	// LaneBuffer is the queue depth of each group lane.
	LaneBuffer int
	// LaneIdleTTL stops lanes that stayed empty this long.
	LaneIdleTTL time.Duration
	// SweepInterval is how often expired idempotency keys are dropped.
	SweepInterval time.Duration

	// Registerer receives the task outcome counters when set.
	Registerer prometheus.Registerer

	// OnFinalFailure runs after a task used up its attempts.
	OnFinalFailure func(t Task, attempts int, err error)
}

// Defaults returns the production router settings.
func Defaults() RouterConfig {
	return RouterConfig{
		DefaultMaxAttempts: 3,
		InitialBackoff:     time.Second,
		MaxBackoff:         30 * time.Second,
		IdempotencyTTL:     time.Minute,
		LaneBuffer:         128,
		LaneIdleTTL:        2 * time.Minute,
		SweepInterval:      time.Minute,
	}
}

var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrDuplicateTask   = errors.New("duplicate task (idempotency key present)")
)

const sharedLane = "_global"

// TaskRouter runs tasks in memory with one ordered lane per group key,
// retrying failures with jittered exponential backoff.
type TaskRouter struct {
	cfg     RouterConfig
	metrics *routerMetrics

	mu       sync.Mutex
	handlers map[string]TaskHandler
	lanes    map[string]*lane
	seen     map[string]time.Time // idempotency key -> forget after
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	cron *cron.Cron
}

// NewRouter starts a router. Zero fields of cfg take their Defaults value.
func NewRouter(cfg RouterConfig) *TaskRouter {
	cfg = withDefaults(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	tr := &TaskRouter{
		cfg:      cfg,
		metrics:  newRouterMetrics(cfg.Registerer),
		handlers: make(map[string]TaskHandler),
		lanes:    make(map[string]*lane),
		seen:     make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
	tr.cron.Start()
	tr.wg.Add(1)
	go tr.sweepLoop()
	return tr
}

func withDefaults(cfg RouterConfig) RouterConfig {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.InitialBackoff)
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = def.LaneBuffer
	}
	if cfg.LaneIdleTTL <= 0 {
		cfg.LaneIdleTTL = def.LaneIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return cfg
}

// RegisterHandler binds handler to taskType, replacing any previous one.
func (tr *TaskRouter) RegisterHandler(taskType string, handler TaskHandler) {
	tr.mu.Lock()
	tr.handlers[taskType] = handler
	tr.mu.Unlock()
}

// Dispatch queues t on its group lane. It blocks only while that lane is
// full, and then honors ctx.
func (tr *TaskRouter) Dispatch(ctx context.Context, t Task) error {
	opts := tr.resolve(t.Options)

	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return ErrRouterClosed
	}
	if tr.handlers[t.Type] == nil {
		tr.mu.Unlock()
		return ErrUnknownTaskType
	}
	if key := opts.IdempotencyKey; key != "" {
		now := time.Now()
		if until, ok := tr.seen[key]; ok && now.Before(until) {
			tr.mu.Unlock()
			tr.metrics.outcome(t.Type, outcomeDuplicate)
			return ErrDuplicateTask
		}
		tr.seen[key] = now.Add(opts.IdempotencyTTL)
	}
	l := tr.laneLocked(laneKey(opts.GroupKey))
	l.pending++
	j := &job{task: t, opts: opts, attempt: 1}
	select {
	case l.jobs <- j:
		tr.mu.Unlock()
		return nil
	default:
	}
	tr.mu.Unlock()

	if err := tr.enqueue(ctx, l, j); err != nil {
		tr.release(l)
		tr.forget(opts.IdempotencyKey)
		return err
	}
	return nil
}

// Close stops scheduling, cancels running handlers and waits for every lane
// worker. Queued tasks that never started are dropped.
func (tr *TaskRouter) Close() {
	tr.once.Do(func() {
		<-tr.cron.Stop().Done()
		tr.cancel()
		tr.mu.Lock()
		tr.closed = true
		clear(tr.lanes)
		tr.mu.Unlock()
		close(tr.done)
		tr.wg.Wait()
	})
}

// Stats is a point-in-time view of the router.
type Stats struct {
	Lanes           int
	RememberedKeys  int
	RegisteredTypes int
	ScheduledJobs   int
	Closed          bool
}

func (tr *TaskRouter) Stats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return Stats{
		Lanes:           len(tr.lanes),
		RememberedKeys:  len(tr.seen),
		RegisteredTypes: len(tr.handlers),
		ScheduledJobs:   len(tr.cron.Entries()),
		Closed:          tr.closed,
	}
}

func (tr *TaskRouter) resolve(o TaskOptions) TaskOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = tr.cfg.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = tr.cfg.MaxBackoff
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = tr.cfg.IdempotencyTTL
	}
	return o
}

func laneKey(group string) string {
	if group == "" {
		return sharedLane
	}
	return group
}

func (tr *TaskRouter) handler(taskType string) TaskHandler {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.handlers[taskType]
}

func (tr *TaskRouter) forget(key string) {
	if key == "" {
		return
	}
	tr.mu.Lock()
	delete(tr.seen, key)
	tr.mu.Unlock()
}

func (tr *TaskRouter) sweepLoop() {
	defer tr.wg.Done()
	ticker := time.NewTicker(tr.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-tr.done:
			return
		case now := <-ticker.C:
			tr.sweep(now)
		}
	}
}

// sweep forgets expired idempotency keys. A key outlives its task so late
// repeats are still rejected.
func (tr *TaskRouter) sweep(now time.Time) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for key, until := range tr.seen {
		if !now.Before(until) {
			delete(tr.seen, key)
		}
	}
}
