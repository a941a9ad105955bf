package moderation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/small-frappuccino/modcore/pkg/task"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers in order, outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// syncDispatcher runs handlers inline so tests observe effects immediately.
type syncDispatcher struct {
	mu         sync.Mutex
	handlers   map[string]task.TaskHandler
	dispatched []task.Task
	every      []task.Task
	failNext   error
}

func newSyncDispatcher() *syncDispatcher {
	return &syncDispatcher{handlers: make(map[string]task.TaskHandler)}
}

func (d *syncDispatcher) RegisterHandler(taskType string, h task.TaskHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[taskType] = h
}

func (d *syncDispatcher) Dispatch(ctx context.Context, t task.Task) error {
	d.mu.Lock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		d.mu.Unlock()
		return err
	}
	h := d.handlers[t.Type]
	d.dispatched = append(d.dispatched, t)
	d.mu.Unlock()
	if h == nil {
		return task.ErrUnknownTaskType
	}
	_ = h(ctx, t.Payload)
	return nil
}

func (d *syncDispatcher) ScheduleEvery(interval time.Duration, t task.Task) task.Cancel {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.every = append(d.every, t)
	return func() {}
}

// memStore is an in-memory Store.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	sanctions  map[int64]Sanction
	warnings   map[string]Warning
	reversions map[int64]Reversion
	policies   map[string]GuildPolicy
	failCreate error
	failPolicy error
}

func newMemStore() *memStore {
	return &memStore{
		sanctions:  make(map[int64]Sanction),
		warnings:   make(map[string]Warning),
		reversions: make(map[int64]Reversion),
		policies:   make(map[string]GuildPolicy),
	}
}

func (m *memStore) CreateSanction(_ context.Context, s Sanction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return 0, m.failCreate
	}
	m.nextID++
	s.ID = m.nextID
	m.sanctions[s.ID] = s
	return s.ID, nil
}

func (m *memStore) Sanction(_ context.Context, id int64) (Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sanctions[id]
	if !ok {
		return Sanction{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) sortedSanctions(keep func(Sanction) bool) []Sanction {
	var out []Sanction
	for _, s := range m.sanctions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) ActiveSanctions(_ context.Context, guildID string, f SanctionFilter) ([]Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSanctions(func(s Sanction) bool {
		return s.GuildID == guildID && s.Active &&
			(f.TargetID == "" || s.TargetID == f.TargetID) &&
			(f.Kind == "" || s.Kind == f.Kind)
	}), nil
}

func (m *memStore) ExpiredSanctions(_ context.Context, now time.Time) ([]Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSanctions(func(s Sanction) bool {
		return s.Active && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
	}), nil
}

func (m *memStore) DeactivateSanction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sanctions[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = false
	m.sanctions[id] = s
	return nil
}

func (m *memStore) SanctionHistory(_ context.Context, guildID, targetID string, limit int) ([]Sanction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sortedSanctions(func(s Sanction) bool { return s.GuildID == guildID && s.TargetID == targetID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CreateWarning(_ context.Context, w Warning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.warnings[w.ID]; dup {
		return errors.New("duplicate warning id")
	}
	m.warnings[w.ID] = w
	return nil
}

func (m *memStore) Warning(_ context.Context, guildID, id string) (Warning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.warnings[id]
	if !ok || w.GuildID != guildID {
		return Warning{}, ErrNotFound
	}
	return w, nil
}

func (m *memStore) ActiveWarnings(_ context.Context, guildID, targetID string) ([]Warning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Warning
	for _, w := range m.warnings {
		if w.GuildID == guildID && w.TargetID == targetID && w.Active {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CountActiveWarnings(ctx context.Context, guildID, targetID string) (int, error) {
	ws, err := m.ActiveWarnings(ctx, guildID, targetID)
	return len(ws), err
}

func (m *memStore) DeactivateWarning(_ context.Context, guildID, id, removedBy, reason string, at time.Time) (Warning, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.warnings[id]
	if !ok || w.GuildID != guildID {
		return Warning{}, false, ErrNotFound
	}
	was := w.Active
	if was {
		w.Active = false
		w.RemovedAt = &at
		w.RemovedBy = removedBy
		w.RemoveReason = reason
		m.warnings[id] = w
	}
	return w, was, nil
}

func (m *memStore) DeactivateWarningsFor(_ context.Context, guildID, targetID, removedBy, reason string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, w := range m.warnings {
		if w.GuildID == guildID && w.TargetID == targetID && w.Active {
			w.Active = false
			w.RemovedAt = &at
			w.RemovedBy = removedBy
			w.RemoveReason = reason
			m.warnings[id] = w
			n++
		}
	}
	return n, nil
}

func (m *memStore) SaveReversion(_ context.Context, r Reversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reversions[r.SanctionID] = r
	return nil
}

func (m *memStore) Reversion(_ context.Context, id int64) (Reversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reversions[id]
	if !ok {
		return Reversion{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) PendingReversions(_ context.Context) ([]Reversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reversion
	for _, r := range m.reversions {
		if r.State == ReversionPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (m *memStore) PendingReversionsFor(ctx context.Context, guildID, targetID string, kind ActionKind) ([]Reversion, error) {
	all, _ := m.PendingReversions(ctx)
	var out []Reversion
	for _, r := range all {
		if r.GuildID == guildID && r.TargetID == targetID && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) TransitionReversion(_ context.Context, id int64, state ReversionState, note string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reversions[id]
	if !ok || r.State != ReversionPending {
		return false, nil
	}
	r.State = state
	r.LastError = note
	r.UpdatedAt = at
	r.Attempts++
	m.reversions[id] = r
	return true, nil
}

func (m *memStore) GuildPolicy(_ context.Context, guildID string) (GuildPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPolicy != nil {
		return GuildPolicy{}, m.failPolicy
	}
	p, ok := m.policies[guildID]
	if !ok {
		p = DefaultPolicy(guildID, LanguageEnglish)
		m.policies[guildID] = p
	}
	return p, nil
}

func (m *memStore) UpdateGuildPolicy(ctx context.Context, guildID string, u PolicyUpdate) (GuildPolicy, error) {
	p, err := m.GuildPolicy(ctx, guildID)
	if err != nil {
		return p, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = p.Apply(u)
	m.policies[guildID] = p
	return p, nil
}

func (m *memStore) reversionState(id int64) ReversionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reversions[id].State
}

func (m *memStore) sanctionActive(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sanctions[id].Active
}

// fakePlatform records effects in memory.
type fakePlatform struct {
	mu       sync.Mutex
	system   Principal
	members  map[string]Principal
	banned   map[string]bool
	muted    map[string]bool
	locked   map[string]ChannelOverwrite
	muteRole string
	calls    []string
	fail     map[string]error
	panicOn  string
	purged   PurgeResult
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		system: Principal{
			ID: "bot", Bot: true, Rank: 100,
			Capabilities: CapBanMembers | CapKickMembers | CapManageRoles | CapManageMessages | CapManageChannels,
		},
		members: make(map[string]Principal),
		banned:  make(map[string]bool),
		muted:   make(map[string]bool),
		locked:  make(map[string]ChannelOverwrite),
		fail:    make(map[string]error),
	}
}

func (p *fakePlatform) call(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOn == op {
		panic("fake platform: " + op)
	}
	p.calls = append(p.calls, op)
	return p.fail[op]
}

func (p *fakePlatform) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (p *fakePlatform) SystemPrincipal(context.Context, string) (Principal, error) {
	if err := p.call("system"); err != nil {
		return Principal{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.system, nil
}

func (p *fakePlatform) Principal(_ context.Context, _ string, userID string) (Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[userID]
	if !ok {
		return Principal{}, &PlatformError{Op: "member", Code: CodeUnknownMember, Message: "Unknown Member"}
	}
	return m, nil
}

func (p *fakePlatform) Ban(_ context.Context, _ string, userID, _ string, _ int) error {
	if err := p.call("ban"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned[userID] = true
	return nil
}

func (p *fakePlatform) Unban(_ context.Context, _ string, userID, _ string) error {
	if err := p.call("unban"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.banned[userID] {
		return &PlatformError{Op: "unban", Code: CodeUnknownBan, Message: "Unknown Ban"}
	}
	delete(p.banned, userID)
	return nil
}

func (p *fakePlatform) Kick(context.Context, string, string, string) error {
	return p.call("kick")
}

func (p *fakePlatform) EnsureMuteRole(_ context.Context, _ string, roleID string) (string, error) {
	if err := p.call("ensure_mute_role"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if roleID != "" && roleID == p.muteRole {
		return roleID, nil
	}
	p.muteRole = "muted-role"
	return p.muteRole, nil
}

func (p *fakePlatform) Mute(_ context.Context, _ string, userID, _ string, _ *time.Time, _ string) error {
	if err := p.call("mute"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted[userID] = true
	return nil
}

func (p *fakePlatform) Unmute(_ context.Context, _ string, userID, _, _ string) error {
	if err := p.call("unmute"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.muted, userID)
	return nil
}

func (p *fakePlatform) IsMuted(_ context.Context, _ string, userID, _ string) (bool, error) {
	if err := p.call("is_muted"); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted[userID], nil
}

func (p *fakePlatform) LockChannel(_ context.Context, _ string, channelID, _ string) (ChannelOverwrite, error) {
	if err := p.call("lock"); err != nil {
		return ChannelOverwrite{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	orig := ChannelOverwrite{Exists: true, Allow: 1024, Deny: 0}
	p.locked[channelID] = orig
	return orig, nil
}

func (p *fakePlatform) UnlockChannel(_ context.Context, _ string, channelID string, _ *ChannelOverwrite, _ string) error {
	if err := p.call("unlock"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locked, channelID)
	return nil
}

func (p *fakePlatform) IsLocked(_ context.Context, _ string, channelID string) (bool, error) {
	if err := p.call("is_locked"); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.locked[channelID]
	return ok, nil
}

func (p *fakePlatform) PurgeMessages(context.Context, string, int, string) (PurgeResult, error) {
	if err := p.call("purge"); err != nil {
		return PurgeResult{}, err
	}
	return p.purged, nil
}

func (p *fakePlatform) setMuted(userID string, muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if muted {
		p.muted[userID] = true
	} else {
		delete(p.muted, userID)
	}
}

func (p *fakePlatform) isMuted(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted[userID]
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	applied  []Sanction
	resolved []Reversion
}

func (n *recordingNotifier) SanctionApplied(_ context.Context, s Sanction, _ GuildPolicy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applied = append(n.applied, s)
}

func (n *recordingNotifier) ReversionResolved(_ context.Context, r Reversion, _ GuildPolicy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, r)
}

type harness struct {
	clock    *fakeClock
	store    *memStore
	platform *fakePlatform
	router   *syncDispatcher
	notifier *recordingNotifier
	sched    *Scheduler
	svc      *Service
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness() *harness {
	h := &harness{
		clock:    newFakeClock(t0),
		store:    newMemStore(),
		platform: newFakePlatform(),
		router:   newSyncDispatcher(),
		notifier: &recordingNotifier{},
	}
	h.sched = NewScheduler(h.store, h.platform, h.router, SchedulerOptions{Clock: h.clock, Notifier: h.notifier})
	h.svc = NewService(h.store, h.platform, h.sched, ServiceOptions{Clock: h.clock, Notifier: h.notifier})
	return h
}

var (
	modActor = Principal{ID: "mod", Rank: 50, RoleNames: []string{"moderator"}, Capabilities: CapKickMembers}
	alice    = Principal{ID: "alice", Rank: 1}
)
